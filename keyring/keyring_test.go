package keyring

import (
	"bytes"
	"testing"

	"github.com/jmcleod/ironshield/csrf"
	"github.com/jmcleod/ironshield/internal/util"
)

// The ring's scope views must satisfy the issuer/validator key interface.
var _ csrf.KeyProvider = (*Provider)(nil)

func newTestRing(t *testing.T) (*Ring, MasterSecret) {
	t.Helper()
	secret, err := NewMasterSecret()
	if err != nil {
		t.Fatalf("NewMasterSecret failed: %v", err)
	}
	ring, err := New(secret)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(ring.Close)
	return ring, secret
}

func TestNewRing(t *testing.T) {
	ring, secret := newTestRing(t)

	if ring.Len() != 1 {
		t.Errorf("Len = %d, want 1", ring.Len())
	}
	if ring.ActiveID() != secret.ID() {
		t.Errorf("ActiveID = %q, want %q", ring.ActiveID(), secret.ID())
	}

	session := ring.Scoped(ScopeSession)
	key := session.SigningKey()
	if len(key) != util.HKDFKeyLength {
		t.Fatalf("signing key length = %d, want %d", len(key), util.HKDFKeyLength)
	}
	if len(session.VerificationKeys()) != 1 {
		t.Errorf("expected one verification key")
	}
}

func TestNewRingRequiresSecret(t *testing.T) {
	if _, err := New(nil); err != ErrNoSecret {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
}

func TestScopesAreDistinct(t *testing.T) {
	ring, _ := newTestRing(t)

	sessionKey := ring.Scoped(ScopeSession).SigningKey()
	preKey := ring.Scoped(ScopePreSession).SigningKey()
	if bytes.Equal(sessionKey, preKey) {
		t.Fatal("session and pre-session scopes must derive distinct keys")
	}

	// A token minted in one scope never validates in the other.
	token, err := csrf.Issue(sessionKey, "sess-123")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if res := csrf.NewValidator(ring.Scoped(ScopePreSession)).Validate("sess-123", token); res.OK {
		t.Error("session-scope token accepted by pre-session validator")
	}
	if res := csrf.NewValidator(ring.Scoped(ScopeSession)).Validate("sess-123", token); !res.OK {
		t.Errorf("session-scope token rejected by its own validator: %s", res.Reason)
	}
}

func TestUnderivedScopeFailsClosed(t *testing.T) {
	secret, err := NewMasterSecret()
	if err != nil {
		t.Fatalf("NewMasterSecret failed: %v", err)
	}
	ring, err := New(secret, ScopeSession)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer ring.Close()

	pre := ring.Scoped(ScopePreSession)
	if pre.SigningKey() != nil {
		t.Error("underived scope should have no signing key")
	}
	if len(pre.VerificationKeys()) != 0 {
		t.Error("underived scope should have no verification keys")
	}
	if _, err := csrf.NewIssuer(pre).Issue("sess-123"); err == nil {
		t.Error("issuance through an underived scope should fail")
	}
}

func TestRotationWindow(t *testing.T) {
	ring, first := newTestRing(t)
	session := ring.Scoped(ScopeSession)
	issuer := csrf.NewIssuer(session)
	validator := csrf.NewValidator(session)

	oldToken, err := issuer.Issue("sess-123")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	next, err := NewMasterSecret()
	if err != nil {
		t.Fatalf("NewMasterSecret failed: %v", err)
	}
	if err := ring.Rotate(next); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	if ring.ActiveID() != next.ID() {
		t.Errorf("ActiveID = %q, want new key %q", ring.ActiveID(), next.ID())
	}
	if ring.Len() != 2 {
		t.Errorf("Len = %d, want 2 during dual-key window", ring.Len())
	}
	ids := ring.KeyIDs()
	if len(ids) != 2 || ids[0] != next.ID() || ids[1] != first.ID() {
		t.Errorf("KeyIDs = %v, want [%s %s]", ids, next.ID(), first.ID())
	}

	// Tokens from before the rotation stay valid through the window.
	if res := validator.Validate("sess-123", oldToken); !res.OK {
		t.Errorf("pre-rotation token rejected during window: %s", res.Reason)
	}

	// New tokens are signed with the new key and validate.
	newToken, err := issuer.Issue("sess-123")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if res := validator.Validate("sess-123", newToken); !res.OK {
		t.Errorf("post-rotation token rejected: %s", res.Reason)
	}

	// Retiring the old key ends the window.
	if err := ring.Retire(); err != nil {
		t.Fatalf("Retire failed: %v", err)
	}
	if ring.Len() != 1 {
		t.Errorf("Len = %d after retire, want 1", ring.Len())
	}
	if res := validator.Validate("sess-123", oldToken); res.OK {
		t.Error("token under retired key still accepted")
	}
	if res := validator.Validate("sess-123", newToken); !res.OK {
		t.Errorf("current-key token rejected after retire: %s", res.Reason)
	}
}

func TestRotateRejectsDuplicateID(t *testing.T) {
	ring, first := newTestRing(t)
	if err := ring.Rotate(first); err != ErrDuplicateKeyID {
		t.Errorf("expected ErrDuplicateKeyID, got %v", err)
	}
}

func TestRetireLastKey(t *testing.T) {
	ring, _ := newTestRing(t)
	if err := ring.Retire(); err != ErrLastKey {
		t.Errorf("expected ErrLastKey, got %v", err)
	}
}

func TestClosedRing(t *testing.T) {
	ring, _ := newTestRing(t)
	session := ring.Scoped(ScopeSession)
	ring.Close()

	if session.SigningKey() != nil {
		t.Error("closed ring should have no signing key")
	}
	if _, err := csrf.NewIssuer(session).Issue("sess-123"); err == nil {
		t.Error("issuance on a closed ring should fail")
	}
	if res := csrf.NewValidator(session).Validate("sess-123", "deadbeef.deadbeef"); res.OK {
		t.Error("closed ring should reject everything")
	}

	next, err := NewMasterSecret()
	if err != nil {
		t.Fatalf("NewMasterSecret failed: %v", err)
	}
	if err := ring.Rotate(next); err != ErrClosed {
		t.Errorf("expected ErrClosed from Rotate, got %v", err)
	}
	if err := ring.Retire(); err != ErrClosed {
		t.Errorf("expected ErrClosed from Retire, got %v", err)
	}

	// Close is idempotent.
	ring.Close()
}

func TestDeriveMasterSecret(t *testing.T) {
	params, err := util.Argon2idProfile(util.KDFProfileInteractive)
	if err != nil {
		t.Fatalf("Argon2idProfile failed: %v", err)
	}

	s1, err := DeriveMasterSecret("correct horse battery staple", WithArgonParams(params))
	if err != nil {
		t.Fatalf("DeriveMasterSecret failed: %v", err)
	}
	s2, err := DeriveMasterSecret("correct horse battery staple", WithArgonParams(params))
	if err != nil {
		t.Fatalf("DeriveMasterSecret failed: %v", err)
	}
	if s1.String() != s2.String() {
		t.Error("derivation should be deterministic for the same passphrase")
	}

	// The derived secret is a well-formed master secret.
	if _, err := ParseMasterSecret(s1.String()); err != nil {
		t.Errorf("derived secret failed to parse: %v", err)
	}

	// NFKD equivalence: composed and decomposed forms derive identically.
	composed, err := DeriveMasterSecret("café", WithArgonParams(params))
	if err != nil {
		t.Fatalf("DeriveMasterSecret failed: %v", err)
	}
	decomposed, err := DeriveMasterSecret("café", WithArgonParams(params))
	if err != nil {
		t.Fatalf("DeriveMasterSecret failed: %v", err)
	}
	if composed.String() != decomposed.String() {
		t.Error("unicode normalization should make equivalent passphrases derive identically")
	}

	// Different passphrases and different salts diverge.
	other, err := DeriveMasterSecret("wrong passphrase", WithArgonParams(params))
	if err != nil {
		t.Fatalf("DeriveMasterSecret failed: %v", err)
	}
	if other.String() == s1.String() {
		t.Error("different passphrases should derive different secrets")
	}
	salted, err := DeriveMasterSecret("correct horse battery staple", WithArgonParams(params), WithSalt([]byte("staging")))
	if err != nil {
		t.Fatalf("DeriveMasterSecret failed: %v", err)
	}
	if salted.String() == s1.String() {
		t.Error("different salts should derive different secrets")
	}

	if _, err := DeriveMasterSecret("", WithArgonParams(params)); err == nil {
		t.Error("empty passphrase should be rejected")
	}
}
