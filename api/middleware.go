package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/ironshield/internal/uuid"
	"github.com/jmcleod/ironshield/keyring"
	"github.com/jmcleod/ironshield/metrics"
)

type contextKey int

const tokenKey contextKey = iota

const (
	tokenCookieName = "ironshield_csrf"

	// TokenHeader is the request header checked first for the presented token.
	TokenHeader = "X-CSRF-Token"
	// TokenField is the form field checked when the header is absent.
	TokenField = "csrf_token"
)

// maxLoggedOrigin caps how much of an attacker-supplied Origin or Referer
// value is copied into audit records.
const maxLoggedOrigin = 200

// Protect enforces anti-forgery checks on state-changing requests.
//
// Safe methods (GET, HEAD, OPTIONS, TRACE) pass through after a token for
// the current session is made available via cookie and request context.
// All other methods must carry a matching source origin and a valid token,
// or the request is answered with an opaque 403.
func (a *API) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			a.ensureToken(w, r, next)
			return
		}
		a.checkRequest(w, r, next)
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// ensureToken guarantees that a safe request leaves with a usable token:
// an existing valid token cookie is kept as-is (issuance order does not
// matter for validity), otherwise a fresh one is issued. Requests without
// any session are given a pre-session identity first.
func (a *API) ensureToken(w http.ResponseWriter, r *http.Request, next http.Handler) {
	id, scope := a.requestIdentity(r)
	if scope == keyring.ScopeSession {
		// A real session ends the pre-session lineage.
		if c, err := r.Cookie(preSessionCookieName); err == nil && c.Value != "" {
			clearPreSessionCookie(w, r)
		}
	}
	if id == "" {
		id = uuid.New()
		writePreSessionCookie(w, r, id)
		a.audit.log(AuditPreSessionStarted, r, slog.String("session", sessionDigest(id)))
	}

	ts := a.tokens(scope)
	token := ""
	if c, err := r.Cookie(tokenCookieName); err == nil && c.Value != "" {
		if res := ts.validator.Validate(id, c.Value); res.OK {
			token = c.Value
		}
	}
	if token == "" {
		issued, err := ts.issuer.Issue(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "token issuance failed")
			return
		}
		token = issued
		writeTokenCookie(w, r, token)
		metrics.TokensIssued.WithLabelValues(string(scope)).Inc()
		a.audit.log(AuditTokenIssued, r,
			slog.String("session", sessionDigest(id)),
			slog.String("scope", string(scope)))
	}

	ctx := context.WithValue(r.Context(), tokenKey, token)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// checkRequest runs the rate limiter, the origin check, and the token check
// in that order. Every rejection path writes the same opaque 403; the
// distinguishing detail goes to the audit log, the rejection trail, and the
// webhook only.
func (a *API) checkRequest(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ip := a.extractClientIP(r)
	if blocked, retryAfter, err := a.rejections.Check(r.Context(), ip); err != nil {
		slog.Warn("rejection store check failed", "error", err)
	} else if blocked {
		a.audit.log(AuditRejectionRateLimited, r, slog.String("client_ip", ip))
		writeRateLimited(w, retryAfter)
		return
	}

	// Origin enforcement runs only when a verifier is configured; it is a
	// defense-in-depth layer on top of the token check, never a substitute.
	if a.origins != nil {
		originHeader := r.Header.Get("Origin")
		refererHeader := r.Header.Get("Referer")
		ores := a.origins.Verify(originHeader, refererHeader)
		if !ores.OK {
			a.rejectOrigin(w, r, ores.Reason.String(), originHeader, refererHeader)
			return
		}
		if originHeader == "" && refererHeader == "" {
			// Only reachable when the verifier was explicitly configured to
			// admit requests with no origin data.
			a.audit.log(AuditMissingOriginAllowed, r)
		}
	}

	id, scope := a.requestIdentity(r)
	presented := presentedToken(r)
	ts := a.tokens(scope)

	start := time.Now()
	res := ts.validator.Validate(id, presented)
	metrics.ValidationDuration.Observe(time.Since(start).Seconds())

	if !res.OK {
		a.rejectToken(w, r, res.Reason.String(), id)
		return
	}

	metrics.Validations.WithLabelValues("accepted").Inc()
	if err := a.rejections.RecordSuccess(r.Context(), ip); err != nil {
		slog.Warn("rejection store reset failed", "error", err)
	}
	ctx := context.WithValue(r.Context(), tokenKey, presented)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// requestIdentity resolves the identifier tokens are bound to. A real
// session from the configured SessionReader wins; otherwise a previously
// minted pre-session ID is used. An empty ID with pre-session scope means
// the request carries no identity at all.
func (a *API) requestIdentity(r *http.Request) (string, keyring.Scope) {
	if id := a.sessions.SessionID(r); id != "" {
		return id, keyring.ScopeSession
	}
	if c, err := r.Cookie(preSessionCookieName); err == nil && c.Value != "" {
		return c.Value, keyring.ScopePreSession
	}
	return "", keyring.ScopePreSession
}

// presentedToken extracts the client's token, header first, then the form
// field. Returning "" means the client sent no token anywhere we look.
func presentedToken(r *http.Request) string {
	if t := r.Header.Get(TokenHeader); t != "" {
		return t
	}
	return r.PostFormValue(TokenField)
}

func (a *API) rejectToken(w http.ResponseWriter, r *http.Request, reason, sessionID string) {
	digest := sessionDigest(sessionID)
	metrics.Validations.WithLabelValues("rejected").Inc()
	metrics.ValidationRejections.WithLabelValues(reason).Inc()

	if err := a.rejections.RecordRejection(r.Context(), a.extractClientIP(r)); err != nil {
		slog.Warn("rejection store record failed", "error", err)
	}
	a.audit.logRejection(AuditTokenRejected, r, reason, slog.String("session", digest))
	a.recordRejection(r, rejectionKindToken, reason, digest)

	writeForbidden(w)
}

func (a *API) rejectOrigin(w http.ResponseWriter, r *http.Request, reason, originHeader, refererHeader string) {
	metrics.OriginRejections.WithLabelValues(reason).Inc()

	if err := a.rejections.RecordRejection(r.Context(), a.extractClientIP(r)); err != nil {
		slog.Warn("rejection store record failed", "error", err)
	}
	source := originHeader
	if source == "" {
		source = refererHeader
	}
	source = truncate(source, maxLoggedOrigin)
	a.audit.logRejection(AuditOriginRejected, r, reason, slog.String("origin", source))
	a.recordRejectionWithOrigin(r, rejectionKindOrigin, reason, "", source)

	writeForbidden(w)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// writeTokenCookie sets the token cookie. It is intentionally NOT HttpOnly
// so that the browser-side SPA can read it and echo it back as a request
// header on mutating requests.
func writeTokenCookie(w http.ResponseWriter, r *http.Request, token string) {
	secure := requestIsSecure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromContext returns the token attached to the request by Protect:
// the issued token on safe requests, the validated one on mutating requests.
// Handlers use it to embed the token in rendered pages or API responses.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
