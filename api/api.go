// Package api is the reference request-handling layer around the csrf and
// origin cores: chi-compatible middleware enforcing signed, session-bound
// anti-forgery tokens plus origin verification, with audit logging, a
// persistent rejection trail, rate limiting, and webhook alerting.
//
// The core packages never depend on api; applications that only need
// issue/validate/verify can use csrf and origin directly.
package api

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/ironshield/csrf"
	"github.com/jmcleod/ironshield/keyring"
	"github.com/jmcleod/ironshield/metrics"
	"github.com/jmcleod/ironshield/origin"
	"github.com/jmcleod/ironshield/storage"
)

// DefaultSessionCookie is the cookie consulted for the application session
// identifier when no SessionReader is configured.
const DefaultSessionCookie = "session"

// API holds the dependencies needed by the protection middleware and the
// REST handlers.
type API struct {
	ring             *keyring.Ring
	sessionTokens    tokenSet
	presessionTokens tokenSet

	sessions       SessionReader
	origins        *origin.Verifier
	rejections     RejectionStore
	repo           storage.Repository
	audit          *auditLogger
	webhook        *auditWebhook
	logger         *slog.Logger
	alertFn        AlertFunc
	trustedProxies []netip.Prefix

	now       func() time.Time
	closeOnce sync.Once
}

// tokenSet pairs the issuer and validator for one token scope.
type tokenSet struct {
	issuer    *csrf.Issuer
	validator *csrf.Validator
}

func newTokenSet(keys csrf.KeyProvider) tokenSet {
	return tokenSet{
		issuer:    csrf.NewIssuer(keys),
		validator: csrf.NewValidator(keys),
	}
}

// tokens selects the issuer/validator pair for the given scope.
func (a *API) tokens(scope keyring.Scope) tokenSet {
	if scope == keyring.ScopePreSession {
		return a.presessionTokens
	}
	return a.sessionTokens
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithSessionReader sets how the application session identifier is read from
// a request. The default reads the "session" cookie verbatim.
func WithSessionReader(r SessionReader) Option {
	return func(a *API) {
		a.sessions = r
	}
}

// WithOriginVerifier enables origin enforcement on mutating requests. Without
// this option only the token check runs.
func WithOriginVerifier(v *origin.Verifier) Option {
	return func(a *API) {
		a.origins = v
	}
}

// WithRejectionStore replaces the in-memory per-IP rejection limiter, e.g.
// with the Redis-backed store for multi-node deployments.
func WithRejectionStore(s RejectionStore) Option {
	return func(a *API) {
		a.rejections = s
	}
}

// WithRejectionTrail persists every blocked request to the given repository
// for incident investigation. Without it rejections are only logged.
func WithRejectionTrail(repo storage.Repository) Option {
	return func(a *API) {
		a.repo = repo
	}
}

// WithWebhook forwards audit events and spike alerts to an external HTTP
// endpoint. authHeader is an optional "Header: Value" credential line.
func WithWebhook(url, authHeader string) Option {
	return func(a *API) {
		a.webhook = newAuditWebhook(url, authHeader)
	}
}

// WithAlertFunc installs a callback fired when rejections spike above the
// threshold within the sliding window.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithTrustedProxies lists the proxy networks (CIDR notation, or bare IPs
// treated as /32 and /128) whose forwarding headers are honored for client IP
// extraction. Without it RemoteAddr is always used, so untrusted peers cannot
// spoof their address via X-Forwarded-For.
func WithTrustedProxies(cidrs []string) (Option, error) {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, raw := range cidrs {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			addr, aerr := netip.ParseAddr(s)
			if aerr != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		prefixes = append(prefixes, prefix)
	}
	return func(a *API) {
		a.trustedProxies = prefixes
	}, nil
}

// New creates a new API instance issuing and validating tokens against the
// given key ring. The ring stays owned by the caller; rotations through
// RotateKeys or directly on the ring are visible immediately.
func New(ring *keyring.Ring, opts ...Option) *API {
	a := &API{
		ring:             ring,
		sessionTokens:    newTokenSet(ring.Scoped(keyring.ScopeSession)),
		presessionTokens: newTokenSet(ring.Scoped(keyring.ScopePreSession)),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.sessions == nil {
		a.sessions = NewCookieSessionReader(DefaultSessionCookie)
	}
	if a.rejections == nil {
		a.rejections = newMemoryRejectionStore()
	}

	a.audit = newAuditLogger(a.logger)
	a.audit.webhook = a.webhook
	if a.alertFn != nil || a.webhook != nil {
		a.audit.spike = newSpikeCollector(a.alertHook())
	}
	return a
}

// alertHook composes the configured callback with webhook delivery so spike
// alerts reach both.
func (a *API) alertHook() AlertFunc {
	return func(evt AlertEvent) {
		if a.alertFn != nil {
			a.alertFn(evt)
		}
		if a.webhook != nil {
			a.webhook.enqueueAlert(evt)
		}
	}
}

// Close releases background resources: the webhook dispatcher drains and the
// in-memory rejection store stops its sweep loop. The key ring is not closed;
// it belongs to the caller. Safe to call more than once.
func (a *API) Close() {
	a.closeOnce.Do(func() {
		if a.webhook != nil {
			a.webhook.close()
		}
		if s, ok := a.rejections.(*memoryRejectionStore); ok {
			s.stop()
		}
	})
}

// RotateKeys installs next as the active signing secret. Previously valid
// keys keep verifying until retired, so tokens issued before the rotation
// stay valid through the window.
func (a *API) RotateKeys(next keyring.MasterSecret) error {
	if err := a.ring.Rotate(next); err != nil {
		return err
	}
	metrics.KeyRotations.Inc()
	a.audit.logSystem(AuditKeyRotated,
		slog.String("key_id", next.ID()),
		slog.Int("keys", a.ring.Len()))
	return nil
}

// RetireOldestKey drops the oldest key from the verification window, ending
// a rotation's dual-key phase.
func (a *API) RetireOldestKey() error {
	if err := a.ring.Retire(); err != nil {
		return err
	}
	a.audit.logSystem(AuditKeyRetired,
		slog.String("active_key_id", a.ring.ActiveID()),
		slog.Int("keys", a.ring.Len()))
	return nil
}

// Router returns a chi.Router with the token endpoint, the rejection trail,
// and the API documentation mounted. The host application decides where to
// mount it and which additional routes to wrap with Protect.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.With(a.Protect).Get("/token", a.TokenHandler)
	r.Get("/rejections", a.ListRejectionsHandler)

	return r
}
