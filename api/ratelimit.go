package api

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RejectionStore tracks failed protection checks per client IP and enforces
// exponential backoff lockouts. Only rejections count; accepted requests
// clear the client's history. Implementations must be safe for concurrent
// use from parallel request handlers.
type RejectionStore interface {
	// Check reports whether the client is currently locked out and, if so,
	// how long the caller should wait.
	Check(ctx context.Context, clientIP string) (blocked bool, retryAfter time.Duration, err error)

	// RecordRejection counts one failed check against the client.
	RecordRejection(ctx context.Context, clientIP string) error

	// RecordSuccess clears the client's failure history after an accepted
	// request.
	RecordSuccess(ctx context.Context, clientIP string) error
}

const (
	// maxRejections is the number of rejections before lockout begins. An
	// occasional stale token after a session change is normal; dozens in an
	// hour from one address is not.
	maxRejections = 20
	// baseLockout is the initial lockout duration once maxRejections is reached.
	baseLockout = 1 * time.Minute
	// maxLockout caps the exponential backoff.
	maxLockout = 30 * time.Minute
	// rejectionExpiry is how long after the last rejection before the record
	// is garbage-collected.
	rejectionExpiry = 1 * time.Hour
	// sweepInterval is how often the in-memory store prunes expired records.
	sweepInterval = 10 * time.Minute
)

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// lockoutFor computes the exponential backoff duration once the failure
// count has reached the threshold.
func lockoutFor(failures int) time.Duration {
	shift := failures - maxRejections
	lockout := baseLockout
	for i := 0; i < shift; i++ {
		lockout *= 2
		if lockout > maxLockout {
			return maxLockout
		}
	}
	return lockout
}

// memoryRejectionStore is the default single-node RejectionStore. A
// background goroutine sweeps expired records; stop terminates it.
type memoryRejectionStore struct {
	mu       sync.Mutex
	attempts map[string]*attemptRecord

	stopOnce sync.Once
	done     chan struct{}
}

var _ RejectionStore = (*memoryRejectionStore)(nil)

func newMemoryRejectionStore() *memoryRejectionStore {
	s := &memoryRejectionStore{
		attempts: make(map[string]*attemptRecord),
		done:     make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *memoryRejectionStore) Check(_ context.Context, clientIP string) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.attempts[clientIP]
	if !ok {
		return false, 0, nil
	}
	// Expire stale records.
	if time.Since(rec.lastFailure) > rejectionExpiry {
		delete(s.attempts, clientIP)
		return false, 0, nil
	}
	if time.Now().Before(rec.lockedUntil) {
		return true, time.Until(rec.lockedUntil), nil
	}
	return false, 0, nil
}

func (s *memoryRejectionStore) RecordRejection(_ context.Context, clientIP string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.attempts[clientIP]
	if !ok {
		rec = &attemptRecord{}
		s.attempts[clientIP] = rec
	}
	rec.failures++
	rec.lastFailure = time.Now()

	if rec.failures >= maxRejections {
		rec.lockedUntil = time.Now().Add(lockoutFor(rec.failures))
	}
	return nil
}

func (s *memoryRejectionStore) RecordSuccess(_ context.Context, clientIP string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, clientIP)
	return nil
}

// sweep removes expired records.
func (s *memoryRejectionStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for ip, rec := range s.attempts {
		if now.Sub(rec.lastFailure) > rejectionExpiry {
			delete(s.attempts, ip)
		}
	}
}

func (s *memoryRejectionStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *memoryRejectionStore) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, "too many requests; try again later")
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// ---------------------------------------------------------------------------
// Helper: extract client IP
// ---------------------------------------------------------------------------

// extractClientIP returns the client IP for rate limiting and audit records.
// It delegates to extractClientIPWithProxies using the API's configured
// trusted proxies.
func (a *API) extractClientIP(r *http.Request) string {
	return extractClientIPWithProxies(r, a.trustedProxies)
}

// extractClientIPWithProxies returns the best-effort client IP address.
//
// Proxy headers (X-Forwarded-For, Forwarded, X-Real-IP) are only honored
// if trustedProxies is non-empty AND the request's RemoteAddr falls within
// one of the trusted CIDR ranges. This prevents untrusted clients from
// spoofing their source IP via headers.
//
// When trustedProxies is nil or empty (the default), proxy headers are
// never consulted and RemoteAddr is always returned. To trust proxy
// headers, the operator must explicitly configure --trusted-proxies.
//
// Priority when proxy headers are trusted:
// 1. First valid entry in X-Forwarded-For
// 2. First valid "for=" value in Forwarded
// 3. X-Real-IP
// 4. RemoteAddr
func extractClientIPWithProxies(r *http.Request, trustedProxies []netip.Prefix) string {
	remoteIP, _ := parseIPCandidate(r.RemoteAddr)

	// Determine whether the direct peer is trusted.
	// Default: trust no proxy headers unless explicitly configured.
	proxyTrusted := false
	if len(trustedProxies) > 0 && remoteIP != "" {
		if addr, err := netip.ParseAddr(remoteIP); err == nil {
			for _, prefix := range trustedProxies {
				if prefix.Contains(addr) {
					proxyTrusted = true
					break
				}
			}
		}
	}

	if proxyTrusted {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			for _, part := range strings.Split(xff, ",") {
				if ip, ok := parseIPCandidate(part); ok {
					return ip
				}
			}
		}

		if fwd := strings.TrimSpace(r.Header.Get("Forwarded")); fwd != "" {
			for _, elem := range strings.Split(fwd, ",") {
				for _, param := range strings.Split(elem, ";") {
					param = strings.TrimSpace(param)
					if !strings.HasPrefix(strings.ToLower(param), "for=") {
						continue
					}
					raw := strings.TrimSpace(param[4:])
					if ip, ok := parseIPCandidate(raw); ok {
						return ip
					}
				}
			}
		}

		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			if ip, ok := parseIPCandidate(xrip); ok {
				return ip
			}
		}
	}

	if remoteIP != "" {
		return remoteIP
	}
	return ""
}

func parseIPCandidate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"")
	if s == "" {
		return "", false
	}

	// RFC 7239 quoted IPv6 may appear as [::1]:1234.
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}

	// Remove IPv6 brackets if present.
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	// Drop zone if any (e.g. fe80::1%eth0).
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}

	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.String(), true
	}
	// As a fallback, allow net.ParseIP normalization.
	if ip := net.ParseIP(s); ip != nil {
		return ip.String(), true
	}
	return "", false
}
