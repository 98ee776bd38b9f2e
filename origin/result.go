package origin

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reason identifies why an origin check rejected.
type Reason int

const (
	// ReasonNone is carried by accepting results.
	ReasonNone Reason = iota
	ReasonNoOriginData
	ReasonOriginMismatch
)

// ErrUnknownReason is returned when an unrecognized reason is unmarshaled.
var ErrUnknownReason = errors.New("unknown rejection reason")

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoOriginData:
		return "no_origin_data"
	case ReasonOriginMismatch:
		return "origin_mismatch"
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
	case "no_origin_data":
		*r = ReasonNoOriginData
	case "origin_mismatch":
		*r = ReasonOriginMismatch
	default:
		return ErrUnknownReason
	}

	return nil
}

func (r Reason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// Result is the outcome of an origin check.
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
