// Package keyring manages the lifecycle of anti-forgery signing secrets:
// formatted master secrets, per-scope key derivation, and rotation with a
// dual-key verification window.
package keyring

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmcleod/ironshield/internal/util"
)

const (
	masterSecretVersion = 1
	masterSecretIDLen   = 6
	// 56 characters of the 31-character alphabet carry roughly 277 bits,
	// comfortably above the 256-bit floor for an HMAC-SHA256 seed.
	masterSecretLen = 56
)

var masterSecretRE = regexp.MustCompile(
	`^AF(\d)-([A-Za-z0-9]{6})-([A-Za-z0-9]{8})-([A-Za-z0-9]{8})-([A-Za-z0-9]{8})-([A-Za-z0-9]{8})-([A-Za-z0-9]{8})-([A-Za-z0-9]{8})-([A-Za-z0-9]{8})$`)

// MasterSecret is a versioned, formatted anti-forgery signing secret. The
// formatted string is what operators store and transport; the raw material
// is exposed only through Bytes and must never be logged. ID is a short
// non-secret handle safe for logs and rotation bookkeeping.
type MasterSecret interface {
	fmt.Stringer
	Version() int
	ID() string
	Bytes() []byte
}

type masterSecret struct {
	version int
	id      string
	secret  []byte
}

func (s *masterSecret) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "AF%d-%s", s.version, s.id)
	for i := 0; i < masterSecretLen; i += 8 {
		fmt.Fprintf(&sb, "-%s", s.secret[i:i+8])
	}
	return sb.String()
}

func (s *masterSecret) Version() int {
	return s.version
}

func (s *masterSecret) ID() string {
	return s.id
}

func (s *masterSecret) Bytes() []byte {
	return util.CopyBytes(s.secret)
}

// ParseMasterSecret parses a master secret from its formatted string form.
// The raw input is never echoed into the error.
func ParseMasterSecret(str string) (MasterSecret, error) {
	matches := masterSecretRE.FindStringSubmatch(str)
	if matches == nil {
		return nil, fmt.Errorf("invalid master secret format")
	}

	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("parsing version: %w", err)
	}
	id := matches[2]
	secret := strings.Join(matches[3:], "")

	return &masterSecret{
		version: version,
		id:      id,
		secret:  []byte(secret),
	}, nil
}

// NewMasterSecret generates a new random master secret.
func NewMasterSecret() (MasterSecret, error) {
	id, err := util.RandomChars(masterSecretIDLen)
	if err != nil {
		return nil, fmt.Errorf("generating master secret ID: %w", err)
	}
	secret, err := util.RandomChars(masterSecretLen)
	if err != nil {
		return nil, fmt.Errorf("generating master secret material: %w", err)
	}
	return &masterSecret{
		version: masterSecretVersion,
		id:      id,
		secret:  []byte(secret),
	}, nil
}
