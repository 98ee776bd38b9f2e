package api

import (
	"net/http"
	"time"
)

const preSessionCookieName = "ironshield_presession"

// SessionReader reports the authenticated session identifier for a request.
// The host application owns session management; ironshield only needs the
// identifier to bind tokens to. Return "" when the request carries no
// authenticated session.
type SessionReader interface {
	SessionID(r *http.Request) string
}

// SessionReaderFunc adapts a plain function to the SessionReader interface.
type SessionReaderFunc func(r *http.Request) string

func (f SessionReaderFunc) SessionID(r *http.Request) string { return f(r) }

// CookieSessionReader reads the session identifier from a named cookie.
// This fits applications whose session middleware stores an opaque session
// ID client-side; for server-side session stores, implement SessionReader
// against the store instead.
type CookieSessionReader struct {
	CookieName string
}

func NewCookieSessionReader(name string) *CookieSessionReader {
	return &CookieSessionReader{CookieName: name}
}

func (c *CookieSessionReader) SessionID(r *http.Request) string {
	cookie, err := r.Cookie(c.CookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// writePreSessionCookie sets the pre-session identifier cookie. Unlike the
// token cookie it is HttpOnly: scripts never need the pre-session ID, only
// the token derived from it.
func writePreSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	secure := requestIsSecure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     preSessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearPreSessionCookie removes the pre-session cookie once a real session
// exists, so the login-form token lineage ends at authentication.
func clearPreSessionCookie(w http.ResponseWriter, r *http.Request) {
	secure := requestIsSecure(r)
	http.SetCookie(w, &http.Cookie{
		Name:     preSessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}
