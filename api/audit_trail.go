package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcleod/ironshield/internal/uuid"
	"github.com/jmcleod/ironshield/storage"
)

const rejectionRecordType = "REJECTION"

// ErrNoTrail is returned by ListRejections when no repository was configured.
var ErrNoTrail = errors.New("api: rejection trail not configured")

type rejectionKind string

const (
	rejectionKindToken  rejectionKind = "token"
	rejectionKindOrigin rejectionKind = "origin"
)

// RejectionRecord is one blocked request in the persisted forgery trail.
// Session identifiers are stored as digests and attacker-controlled origin
// values are truncated before they get here, so records are safe to ship to
// an incident-review tool as-is.
type RejectionRecord struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Reason        string `json:"reason"`
	SessionDigest string `json:"session_digest,omitempty"`
	Origin        string `json:"origin,omitempty"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	ClientIP      string `json:"client_ip"`
	CreatedAt     string `json:"created_at"`
}

func (a *API) recordRejection(r *http.Request, kind rejectionKind, reason, sessionDigest string) {
	a.recordRejectionWithOrigin(r, kind, reason, sessionDigest, "")
}

// recordRejectionWithOrigin appends a record to the trail. Record IDs embed
// a zero-padded nanosecond timestamp so the repository's lexicographic List
// order is chronological.
func (a *API) recordRejectionWithOrigin(r *http.Request, kind rejectionKind, reason, sessionDigest, source string) {
	if a.repo == nil {
		return
	}
	now := a.now().UTC()
	rec := RejectionRecord{
		ID:            fmt.Sprintf("%020d-%s", now.UnixNano(), uuid.New()),
		Kind:          string(kind),
		Reason:        reason,
		SessionDigest: sessionDigest,
		Origin:        source,
		Method:        r.Method,
		Path:          r.URL.Path,
		ClientIP:      a.extractClientIP(r),
		CreatedAt:     now.Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("rejection trail: marshal failed", "error", err)
		return
	}
	if err := a.repo.Put(rejectionRecordType, rec.ID, data); err != nil {
		slog.Warn("rejection trail: append failed", "error", err)
	}
}

// ListRejections returns up to limit persisted rejection records, newest
// first. A non-positive limit returns the whole trail.
func (a *API) ListRejections(limit int) ([]RejectionRecord, error) {
	if a.repo == nil {
		return nil, ErrNoTrail
	}
	ids, err := a.repo.List(rejectionRecordType)
	if err != nil {
		return nil, fmt.Errorf("listing rejection records: %w", err)
	}

	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	records := make([]RejectionRecord, 0, limit)
	for i := len(ids) - 1; i >= 0 && len(records) < limit; i-- {
		data, err := a.repo.Get(rejectionRecordType, ids[i])
		if err != nil {
			// A record deleted between List and Get is not worth failing
			// the whole listing for.
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("loading rejection record %s: %w", ids[i], err)
		}
		var rec RejectionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			slog.Warn("rejection trail: skipping unreadable record", "id", ids[i], "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
