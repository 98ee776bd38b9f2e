package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

// AlertForgerySpike fires when rejected requests exceed the threshold within
// the sliding window, suggesting an active forgery campaign rather than a
// stray stale token.
const AlertForgerySpike AlertType = "forgery_spike"

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// spikeCollector tracks a sliding window counter over rejection events.
type spikeCollector struct {
	mu sync.Mutex

	rejections []time.Time
	window     time.Duration
	threshold  int

	alertFn AlertFunc
}

const (
	defaultRejectionWindow    = 1 * time.Minute
	defaultRejectionThreshold = 25
)

func newSpikeCollector(alertFn AlertFunc) *spikeCollector {
	return &spikeCollector{
		window:    defaultRejectionWindow,
		threshold: defaultRejectionThreshold,
		alertFn:   alertFn,
	}
}

// recordEvent inspects an audit event and updates the rejection counter.
func (c *spikeCollector) recordEvent(event AuditEvent) {
	if c == nil || c.alertFn == nil {
		return
	}
	switch event {
	case AuditTokenRejected, AuditOriginRejected:
		c.recordRejection()
	}
}

func (c *spikeCollector) recordRejection() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.rejections = append(c.rejections, now)
	c.rejections = trimWindow(c.rejections, now, c.window)

	if len(c.rejections) >= c.threshold {
		c.alertFn(AlertEvent{
			Type:      AlertForgerySpike,
			Message:   "request rejection rate exceeds threshold",
			Count:     len(c.rejections),
			Threshold: c.threshold,
			Timestamp: now,
		})
		// Reset to avoid repeated alerts within the same spike.
		c.rejections = c.rejections[:0]
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
