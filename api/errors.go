package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeForbidden sends the uniform 403 used for every protection failure.
// The response body never says whether the origin check or the token check
// failed, or why — the precise reason goes to the audit log only.
func writeForbidden(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "request blocked")
}
