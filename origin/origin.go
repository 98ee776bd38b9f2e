// Package origin verifies that a request's declared source origin exactly
// matches an expected target origin, using the Origin header with a Referer
// fallback. It is a defense-in-depth companion to token validation, not a
// replacement for it.
package origin

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Origin is a parsed scheme+host+port tuple. The zero value is not a valid
// origin; construct one with Parse. Origins with equal scheme, host, and
// port compare equal, with default ports filled in so "https://a" and
// "https://a:443" are the same origin.
type Origin struct {
	scheme string
	host   string
	port   string
}

func (o Origin) Scheme() string { return o.scheme }
func (o Origin) Host() string   { return o.host }
func (o Origin) Port() string   { return o.port }

func (o Origin) IsZero() bool { return o == Origin{} }

// String renders the canonical browser form, omitting default ports.
func (o Origin) String() string {
	host := o.host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if o.port == "" || o.port == defaultPort(o.scheme) {
		return o.scheme + "://" + host
	}
	return o.scheme + "://" + host + ":" + o.port
}

// Parse validates and parses a fully-qualified origin of the form
// scheme://host[:port]. Path, query, fragment, and userinfo components are
// forbidden.
func Parse(raw string) (Origin, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Origin{}, fmt.Errorf("invalid origin %q: %w", raw, err)
	}
	if u.Scheme == "" {
		return Origin{}, fmt.Errorf("invalid origin %q: scheme is required", raw)
	}
	if u.Host == "" {
		return Origin{}, fmt.Errorf("invalid origin %q: host is required", raw)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return Origin{}, fmt.Errorf("invalid origin %q: path, query, and fragment are not allowed", raw)
	}
	if u.User != nil {
		return Origin{}, fmt.Errorf("invalid origin %q: userinfo is not allowed", raw)
	}
	return fromURL(u), nil
}

func fromURL(u *url.URL) Origin {
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		port = defaultPort(scheme)
	}
	return Origin{
		scheme: scheme,
		host:   strings.ToLower(u.Hostname()),
		port:   port,
	}
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http", "ws":
		return "80"
	case "https", "wss":
		return "443"
	}
	return ""
}

// reduceReferer extracts the scheme+host+port prefix of a referer URL,
// discarding path, query, and fragment.
func reduceReferer(raw string) (Origin, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Origin{}, false
	}
	return fromURL(u), true
}

// sourceOrigin resolves a request's declared source. present reports whether
// either header carried data at all; ok reports whether that data parsed to
// an origin. "Origin: null" counts as present data that matches nothing.
func sourceOrigin(originHeader, refererHeader string) (src Origin, ok, present bool) {
	if originHeader != "" {
		if originHeader == "null" {
			return Origin{}, false, true
		}
		o, err := Parse(originHeader)
		if err != nil {
			return Origin{}, false, true
		}
		return o, true, true
	}
	if refererHeader != "" {
		o, reduced := reduceReferer(refererHeader)
		if !reduced {
			return Origin{}, false, true
		}
		return o, true, true
	}
	return Origin{}, false, false
}

// Verify checks the declared source of a request against a single target
// origin. The Origin header takes precedence; the Referer header is
// consulted only when Origin is empty. Matching is exact on scheme, host,
// and port over the parsed tuple, never a substring or prefix test, so
// "https://example.org.attacker.com" can never satisfy a check for
// "https://example.org".
func Verify(originHeader, refererHeader string, target Origin) Result {
	src, ok, present := sourceOrigin(originHeader, refererHeader)
	if !present {
		return Reject(ReasonNoOriginData)
	}
	if !ok || src != target {
		return Reject(ReasonOriginMismatch)
	}
	return Accept()
}

// Verifier checks declared source origins against a set of allowed targets.
// Safe for concurrent use.
type Verifier struct {
	mu           sync.RWMutex
	allowed      map[Origin]struct{}
	allowMissing bool
}

func NewVerifier() *Verifier {
	return &Verifier{allowed: make(map[Origin]struct{})}
}

// AddAllowedOrigin registers a target origin of the form scheme://host[:port].
func (v *Verifier) AddAllowedOrigin(raw string) error {
	o, err := Parse(raw)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowed[o] = struct{}{}
	return nil
}

// AllowMissingOrigin opts in to accepting requests that carry neither an
// Origin nor a Referer header, for deployments behind header-stripping
// proxies. Callers should log every acceptance taken through this path.
func (v *Verifier) AllowMissingOrigin(allow bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowMissing = allow
}

// Verify resolves the declared source origin and requires an exact match
// against one of the allowed targets.
func (v *Verifier) Verify(originHeader, refererHeader string) Result {
	src, ok, present := sourceOrigin(originHeader, refererHeader)
	if !present {
		v.mu.RLock()
		allow := v.allowMissing
		v.mu.RUnlock()
		if allow {
			return Accept()
		}
		return Reject(ReasonNoOriginData)
	}
	if !ok {
		return Reject(ReasonOriginMismatch)
	}

	v.mu.RLock()
	_, match := v.allowed[src]
	v.mu.RUnlock()
	if !match {
		return Reject(ReasonOriginMismatch)
	}
	return Accept()
}
