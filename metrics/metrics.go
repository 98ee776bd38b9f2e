// Package metrics exposes Prometheus instrumentation for token issuance and
// validation. Counters are registered on the default registry; the server
// command serves them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironshield_tokens_issued_total",
			Help: "Total number of anti-forgery tokens issued",
		},
		[]string{"scope"},
	)

	Validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironshield_validations_total",
			Help: "Total number of token validations by outcome",
		},
		[]string{"outcome"},
	)

	ValidationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironshield_validation_rejections_total",
			Help: "Total number of token validation rejections by reason",
		},
		[]string{"reason"},
	)

	OriginRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ironshield_origin_rejections_total",
			Help: "Total number of origin verification rejections by reason",
		},
		[]string{"reason"},
	)

	ValidationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ironshield_validation_duration_seconds",
			Help:    "Time taken to validate a presented token",
			Buckets: prometheus.DefBuckets,
		},
	)

	KeyRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ironshield_key_rotations_total",
			Help: "Total number of signing key rotations",
		},
	)
)
