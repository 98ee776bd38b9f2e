package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironshield/storage/memory"
)

func newTrailAPI() *API {
	return &API{
		repo: memory.NewRepository(),
		now:  time.Now,
	}
}

func TestRejectionTrail_RecordAndList(t *testing.T) {
	a := newTrailAPI()

	r := httptest.NewRequest("POST", "/settings", nil)
	r.RemoteAddr = "203.0.113.7:4455"
	a.recordRejection(r, rejectionKindToken, "invalid_signature", "ab12cd34")

	records, err := a.ListRejections(0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "token", rec.Kind)
	assert.Equal(t, "invalid_signature", rec.Reason)
	assert.Equal(t, "ab12cd34", rec.SessionDigest)
	assert.Empty(t, rec.Origin)
	assert.Equal(t, "POST", rec.Method)
	assert.Equal(t, "/settings", rec.Path)
	assert.Equal(t, "203.0.113.7", rec.ClientIP)
	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.CreatedAt)
}

func TestRejectionTrail_OriginRecord(t *testing.T) {
	a := newTrailAPI()

	r := httptest.NewRequest("DELETE", "/items/7", nil)
	r.RemoteAddr = "203.0.113.7:4455"
	a.recordRejectionWithOrigin(r, rejectionKindOrigin, "origin_mismatch", "", "https://evil.example")

	records, err := a.ListRejections(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "origin", records[0].Kind)
	assert.Equal(t, "origin_mismatch", records[0].Reason)
	assert.Equal(t, "https://evil.example", records[0].Origin)
	assert.Empty(t, records[0].SessionDigest)
}

func TestRejectionTrail_NewestFirst(t *testing.T) {
	a := newTrailAPI()

	// Pin distinct timestamps so record IDs sort deterministically.
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		stamp := base.Add(time.Duration(i) * time.Second)
		a.now = func() time.Time { return stamp }
		r := httptest.NewRequest("POST", "/submit", nil)
		r.RemoteAddr = "203.0.113.7:4455"
		a.recordRejection(r, rejectionKindToken, "missing_token", "")
	}

	records, err := a.ListRejections(0)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first: created_at strictly decreasing.
	assert.Greater(t, records[0].CreatedAt, records[1].CreatedAt)
	assert.Greater(t, records[1].CreatedAt, records[2].CreatedAt)
}

func TestRejectionTrail_Limit(t *testing.T) {
	a := newTrailAPI()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		stamp := base.Add(time.Duration(i) * time.Second)
		a.now = func() time.Time { return stamp }
		r := httptest.NewRequest("POST", "/submit", nil)
		r.RemoteAddr = "203.0.113.7:4455"
		a.recordRejection(r, rejectionKindToken, "missing_token", "")
	}

	records, err := a.ListRejections(4)
	require.NoError(t, err)
	require.Len(t, records, 4)

	// The page holds the 4 newest records.
	newest := base.Add(9 * time.Second).Format(time.RFC3339Nano)
	assert.Equal(t, newest, records[0].CreatedAt)
}

func TestRejectionTrail_NotConfigured(t *testing.T) {
	a := &API{now: time.Now}

	_, err := a.ListRejections(0)
	require.ErrorIs(t, err, ErrNoTrail)

	// Recording without a repository is a silent no-op.
	r := httptest.NewRequest("POST", "/submit", nil)
	a.recordRejection(r, rejectionKindToken, "missing_token", "")
}
