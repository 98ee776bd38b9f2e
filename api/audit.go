package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditTokenIssued          AuditEvent = "token_issued"
	AuditTokenRejected        AuditEvent = "token_rejected"
	AuditOriginRejected       AuditEvent = "origin_rejected"
	AuditMissingOriginAllowed AuditEvent = "missing_origin_allowed"
	AuditRejectionRateLimited AuditEvent = "rejection_rate_limited"
	AuditPreSessionStarted    AuditEvent = "presession_started"
	AuditKeyRotated           AuditEvent = "key_rotated"
	AuditKeyRetired           AuditEvent = "key_retired"
)

// auditLogger wraps slog.Logger for structured security audit logging.
// Every event also feeds the spike collector and the webhook dispatcher
// when those are configured.
type auditLogger struct {
	logger  *slog.Logger
	spike   *spikeCollector
	webhook *auditWebhook
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry. Session identifiers never appear
// raw in attrs — callers pass the output of sessionDigest instead.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)

	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	if al.spike != nil {
		al.spike.recordEvent(event)
	}
	if al.webhook != nil {
		al.webhook.enqueue(webhookEventFrom(event, r.RemoteAddr, attrs))
	}
}

// logRejection logs a blocked request with its server-side reason.
func (al *auditLogger) logRejection(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logSystem records an operator action that has no originating request,
// such as a key rotation.
func (al *auditLogger) logSystem(event AuditEvent, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", baseAttrs...)
	if al.webhook != nil {
		al.webhook.enqueue(webhookEventFrom(event, "", attrs))
	}
}

// sessionDigest returns a short stable digest of a session identifier, safe
// for logs and rejection records. Empty input yields the empty string.
func sessionDigest(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:])[:16]
}
