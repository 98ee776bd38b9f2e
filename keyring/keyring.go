package keyring

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/ironshield/internal/util"
)

// Scope names a token domain with its own derived signing key. Tokens
// issued in one scope never validate in another, even for identical
// identifier bytes.
type Scope string

const (
	// ScopeSession covers tokens bound to authenticated sessions.
	ScopeSession Scope = "session"

	// ScopePreSession covers login-form tokens bound to pre-session
	// identifiers, kept structurally distinct from session tokens.
	ScopePreSession Scope = "presession"
)

var defaultScopes = []Scope{ScopeSession, ScopePreSession}

// hkdfSalt pins derived keys to this scheme. Changing it invalidates every
// token in flight.
var hkdfSalt = []byte("ironshield/keyring/v1")

var (
	ErrNoSecret       = errors.New("keyring: master secret is required")
	ErrClosed         = errors.New("keyring: ring is closed")
	ErrDuplicateKeyID = errors.New("keyring: master secret with this ID already installed")
	ErrLastKey        = errors.New("keyring: cannot retire the only key")
)

// ringKey is one master secret's worth of derived scope keys. Key material
// lives in memguard locked buffers; a dropped ringKey is wiped when the
// collector finalizes its buffers, so in-flight validations holding the old
// key list stay safe.
type ringKey struct {
	id     string
	scoped map[Scope]*memguard.LockedBuffer
}

// Ring holds the ordered list of currently-valid signing keys, newest
// first, behind an atomically-swapped pointer. Validation paths read
// lock-free; Rotate, Retire, and Close serialize on a writer mutex.
type Ring struct {
	mu     sync.Mutex
	keys   atomic.Pointer[[]*ringKey]
	scopes []Scope
	closed bool
}

// New builds a ring around an initial master secret, deriving one signing
// key per scope. With no explicit scopes it derives the session and
// pre-session scopes.
func New(secret MasterSecret, scopes ...Scope) (*Ring, error) {
	if secret == nil {
		return nil, ErrNoSecret
	}
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	k, err := deriveRingKey(secret, scopes)
	if err != nil {
		return nil, err
	}
	r := &Ring{scopes: scopes}
	keys := []*ringKey{k}
	r.keys.Store(&keys)
	return r, nil
}

func deriveRingKey(secret MasterSecret, scopes []Scope) (*ringKey, error) {
	seed := secret.Bytes()
	defer util.WipeBytes(seed)

	scoped := make(map[Scope]*memguard.LockedBuffer, len(scopes))
	for _, scope := range scopes {
		km, err := util.HKDF(seed, hkdfSalt, []byte("signing/"+string(scope)))
		if err != nil {
			for _, buf := range scoped {
				buf.Destroy()
			}
			return nil, fmt.Errorf("deriving %s signing key: %w", scope, err)
		}
		// NewBufferFromBytes moves km into the locked buffer and wipes it.
		scoped[scope] = memguard.NewBufferFromBytes(km)
	}
	return &ringKey{id: secret.ID(), scoped: scoped}, nil
}

// Rotate atomically installs next as the newest signing key. Previously
// installed keys remain valid for verification until retired, so tokens
// issued before the rotation keep validating through the window.
func (r *Ring) Rotate(next MasterSecret) error {
	if next == nil {
		return ErrNoSecret
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	current := *r.keys.Load()
	for _, k := range current {
		if k.id == next.ID() {
			return ErrDuplicateKeyID
		}
	}

	nk, err := deriveRingKey(next, r.scopes)
	if err != nil {
		return err
	}
	keys := make([]*ringKey, 0, len(current)+1)
	keys = append(keys, nk)
	keys = append(keys, current...)
	r.keys.Store(&keys)
	return nil
}

// Retire drops the oldest key from the verification window. Tokens signed
// under it stop validating once in-flight work drains. The ring refuses to
// retire its only key.
func (r *Ring) Retire() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	current := *r.keys.Load()
	if len(current) <= 1 {
		return ErrLastKey
	}
	keys := make([]*ringKey, len(current)-1)
	copy(keys, current[:len(current)-1])
	r.keys.Store(&keys)
	return nil
}

// Close wipes all key material. Call only after request handling has
// stopped; slices handed out by providers become invalid.
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	current := *r.keys.Load()
	empty := []*ringKey{}
	r.keys.Store(&empty)
	for _, k := range current {
		for _, buf := range k.scoped {
			buf.Destroy()
		}
	}
}

// ActiveID returns the ID of the key new tokens are signed with, or "" on a
// closed ring. Safe for logs.
func (r *Ring) ActiveID() string {
	keys := *r.keys.Load()
	if len(keys) == 0 {
		return ""
	}
	return keys[0].id
}

// KeyIDs returns the IDs of every currently-valid key, newest first.
func (r *Ring) KeyIDs() []string {
	keys := *r.keys.Load()
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.id
	}
	return ids
}

// Len reports how many keys are currently valid for verification.
func (r *Ring) Len() int {
	return len(*r.keys.Load())
}

// Scoped returns a key provider view of the ring for one scope, suitable
// for csrf.NewIssuer and csrf.NewValidator. Views observe rotations
// immediately.
func (r *Ring) Scoped(scope Scope) *Provider {
	return &Provider{ring: r, scope: scope}
}

// Provider adapts one scope of a ring to the issuer/validator key
// interface. Returned slices point into locked buffers owned by the ring:
// valid until Close, not to be retained or modified.
type Provider struct {
	ring  *Ring
	scope Scope
}

// SigningKey returns the newest key for the provider's scope, or nil when
// the ring is closed or the scope was not derived. Issuance fails closed on
// nil.
func (p *Provider) SigningKey() []byte {
	keys := *p.ring.keys.Load()
	if len(keys) == 0 {
		return nil
	}
	buf, ok := keys[0].scoped[p.scope]
	if !ok {
		return nil
	}
	return buf.Bytes()
}

// VerificationKeys returns every currently-valid key for the provider's
// scope, newest first.
func (p *Provider) VerificationKeys() [][]byte {
	keys := *p.ring.keys.Load()
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if buf, ok := k.scoped[p.scope]; ok {
			out = append(out, buf.Bytes())
		}
	}
	return out
}
