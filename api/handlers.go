package api

import (
	"errors"
	"net/http"
	"strconv"
)

// TokenResponse is returned by the token endpoint.
type TokenResponse struct {
	Token string `json:"token"`
}

// RejectionListResponse is returned by the rejection trail endpoint.
type RejectionListResponse struct {
	Rejections []RejectionRecord `json:"rejections"`
	Count      int               `json:"count"`
}

// defaultRejectionPageSize bounds the trail endpoint when no limit is given.
const defaultRejectionPageSize = 100

// maxRejectionPageSize is the hard cap on a single trail page.
const maxRejectionPageSize = 1000

// TokenHandler returns the caller's current anti-forgery token. It must be
// mounted behind Protect, which issues the token and attaches it to the
// request context; single-page applications fetch it here instead of parsing
// the cookie.
func (a *API) TokenHandler(w http.ResponseWriter, r *http.Request) {
	token := TokenFromContext(r.Context())
	if token == "" {
		writeError(w, http.StatusInternalServerError, "no token available")
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// ListRejectionsHandler serves the persisted rejection trail, newest first.
// Deployments exposing it should mount it behind operator authentication;
// the records themselves contain no secret material.
func (a *API) ListRejectionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultRejectionPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRejectionPageSize)
	}

	records, err := a.ListRejections(limit)
	if err != nil {
		if errors.Is(err, ErrNoTrail) {
			writeError(w, http.StatusNotFound, "rejection trail not configured")
			return
		}
		writeError(w, http.StatusInternalServerError, "listing rejections failed")
		return
	}
	writeJSON(w, http.StatusOK, RejectionListResponse{
		Rejections: records,
		Count:      len(records),
	})
}
