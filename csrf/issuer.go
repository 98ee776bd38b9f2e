package csrf

// KeyProvider supplies signing keys for one token scope. Implementations
// must be safe for concurrent use; keyring.Ring satisfies this interface.
type KeyProvider interface {
	// SigningKey returns the key new tokens are signed with.
	SigningKey() []byte

	// VerificationKeys returns every key still accepted during validation,
	// newest first. During a rotation window this includes the predecessor
	// keys so in-flight tokens are not spuriously rejected.
	VerificationKeys() [][]byte
}

// Keys is a fixed KeyProvider for callers that manage key material
// themselves. The first key signs; all keys verify.
type Keys [][]byte

func (k Keys) SigningKey() []byte         { return k[0] }
func (k Keys) VerificationKeys() [][]byte { return k }

// Issuer mints tokens with the provider's current signing key.
type Issuer struct {
	keys KeyProvider
}

func NewIssuer(keys KeyProvider) *Issuer {
	return &Issuer{keys: keys}
}

func (i *Issuer) Issue(sessionID string) (string, error) {
	return Issue(i.keys.SigningKey(), sessionID)
}
