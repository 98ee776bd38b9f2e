package csrf

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reason identifies why a token check rejected.
type Reason int

const (
	// ReasonNone is carried by accepting results.
	ReasonNone Reason = iota
	ReasonMissingToken
	ReasonMalformedToken
	ReasonInvalidSignature
)

// ErrUnknownReason is returned when an unrecognized reason is unmarshaled.
var ErrUnknownReason = errors.New("unknown rejection reason")

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonMissingToken:
		return "missing_token"
	case ReasonMalformedToken:
		return "malformed_token"
	case ReasonInvalidSignature:
		return "invalid_signature"
	default:
		return "unknown"
	}
}

func (r *Reason) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("unmarshaling rejection reason: %w", err)
	}

	switch s {
	case "none":
		*r = ReasonNone
	case "missing_token":
		*r = ReasonMissingToken
	case "malformed_token":
		*r = ReasonMalformedToken
	case "invalid_signature":
		*r = ReasonInvalidSignature
	default:
		return ErrUnknownReason
	}

	return nil
}

func (r Reason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// Result is the outcome of a token check. Rejections never surface as
// errors; callers branch on OK and log Reason server-side.
type Result struct {
	OK     bool
	Reason Reason
}

func Accept() Result {
	return Result{OK: true}
}

func Reject(reason Reason) Result {
	return Result{Reason: reason}
}
