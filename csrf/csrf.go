// Package csrf implements signed, session-bound anti-forgery tokens
// following the HMAC-based double-submit pattern recommended by OWASP.
//
// A token is the pair hex(tag) + "." + hex(random), where random is drawn
// fresh from a CSPRNG per issuance and tag authenticates the session
// identifier together with that random value. The session identifier itself
// never appears in the serialized token. Tokens carry no expiry; a token
// lives and dies with the session it is bound to.
package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/jmcleod/ironshield/internal/util"
)

const (
	// RandomLen is the number of CSPRNG bytes drawn per issued token.
	RandomLen = 32

	// TagLen is the HMAC-SHA256 output length in bytes.
	TagLen = sha256.Size

	// MinKeyLen is the smallest signing key Issue accepts.
	MinKeyLen = 32

	separator = "."

	// maxPresentedLen caps the parse work spent on hostile input. A
	// well-formed token is 129 characters.
	maxPresentedLen = 512
)

var (
	ErrEmptySessionID = errors.New("csrf: empty session identifier")
	ErrKeyTooShort    = errors.New("csrf: signing key shorter than 32 bytes")
)

// canonicalMessage builds the HMAC input from the raw bytes of both
// components. The explicit decimal length prefixes guarantee that no two
// distinct (session, random) pairs serialize to the same byte sequence.
func canonicalMessage(sessionID string, random []byte) []byte {
	return fmt.Appendf(nil, "%d!%s!%d!%s", len(sessionID), sessionID, len(random), random)
}

func computeTag(key []byte, sessionID string, random []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(canonicalMessage(sessionID, random))
	return mac.Sum(nil)
}

// Issue mints a serialized anti-forgery token bound to sessionID. Two calls
// with the same session identifier return different tokens; both remain
// valid for that session. Issue is stateless and has no side effect beyond
// consuming entropy.
func Issue(key []byte, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrEmptySessionID
	}
	if len(key) < MinKeyLen {
		return "", ErrKeyTooShort
	}
	random, err := util.RandomBytes(RandomLen)
	if err != nil {
		return "", fmt.Errorf("drawing random component: %w", err)
	}
	tag := computeTag(key, sessionID, random)
	return util.HexEncode(tag) + separator + util.HexEncode(random), nil
}

// Verify checks a presented token against the current session identifier
// using a single key. The expected tag is recomputed from the random
// component carried by the presented token, so no issued state is consulted.
// Tag comparison is constant time.
func Verify(key []byte, sessionID, presented string) Result {
	tag, random, reason := decompose(presented)
	if reason != ReasonNone {
		return Reject(reason)
	}
	expected := computeTag(key, sessionID, random)
	if !hmac.Equal(tag, expected) {
		return Reject(ReasonInvalidSignature)
	}
	return Accept()
}

// decompose splits a presented token on the first separator and decodes both
// halves. Structural problems surface as ReasonMalformedToken; a completely
// absent token surfaces as ReasonMissingToken.
func decompose(presented string) (tag, random []byte, reason Reason) {
	if presented == "" {
		return nil, nil, ReasonMissingToken
	}
	if len(presented) > maxPresentedLen {
		return nil, nil, ReasonMalformedToken
	}
	tagHex, randomHex, found := strings.Cut(presented, separator)
	if !found || tagHex == "" || randomHex == "" {
		return nil, nil, ReasonMalformedToken
	}
	tag, err := util.HexDecode(tagHex)
	if err != nil || len(tag) != TagLen {
		return nil, nil, ReasonMalformedToken
	}
	random, err = util.HexDecode(randomHex)
	if err != nil || len(random) == 0 {
		return nil, nil, ReasonMalformedToken
	}
	return tag, random, ReasonNone
}
