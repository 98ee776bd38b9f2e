package csrf

import "crypto/hmac"

// Validator checks presented tokens against every currently-valid key,
// newest first. A token accepted under any key is accepted.
type Validator struct {
	keys KeyProvider
}

func NewValidator(keys KeyProvider) *Validator {
	return &Validator{keys: keys}
}

// Validate recomputes the expected tag from the current session identifier
// and the random component carried by the presented token. It is a pure
// function of its inputs; rejected attempts are the caller's to log.
func (v *Validator) Validate(sessionID, presented string) Result {
	tag, random, reason := decompose(presented)
	if reason != ReasonNone {
		return Reject(reason)
	}
	for _, key := range v.keys.VerificationKeys() {
		expected := computeTag(key, sessionID, random)
		if hmac.Equal(tag, expected) {
			return Accept()
		}
	}
	return Reject(ReasonInvalidSignature)
}
