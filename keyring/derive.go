package keyring

import (
	"fmt"

	"github.com/jmcleod/ironshield/internal/util"
)

var (
	deriveInfo = []byte("ironshield:master-secret:v1")
	deriveSalt = []byte("ironshield/derive/v1")
)

// DeriveOption is a functional option for DeriveMasterSecret.
type DeriveOption func(*deriveOptions)

type deriveOptions struct {
	salt   []byte
	params util.Argon2idParams
}

// WithSalt overrides the derivation salt. Deployments sharing a passphrase
// across environments should use distinct salts.
func WithSalt(salt []byte) DeriveOption {
	return func(o *deriveOptions) {
		o.salt = salt
	}
}

// WithArgonParams overrides the Argon2id cost parameters.
func WithArgonParams(params util.Argon2idParams) DeriveOption {
	return func(o *deriveOptions) {
		o.params = params
	}
}

// DeriveMasterSecret deterministically derives a formatted master secret
// from a passphrase (NFKD-normalized, stretched with Argon2id, expanded with
// HKDF onto the secret alphabet). The same passphrase, salt, and parameters
// always yield the same secret.
//
// This exists for development and test environments where operators cannot
// persist a generated secret. Production deployments use NewMasterSecret.
func DeriveMasterSecret(passphrase string, opts ...DeriveOption) (MasterSecret, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}

	options := deriveOptions{
		salt:   deriveSalt,
		params: util.DefaultArgon2idParams(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	normalized := util.Normalize(passphrase)
	seed, err := util.DeriveArgon2idKey(normalized, options.salt, options.params)
	if err != nil {
		return nil, fmt.Errorf("stretching passphrase: %w", err)
	}
	defer util.WipeBytes(seed)

	stream := util.HKDFExpand(seed, options.salt, deriveInfo)
	material, err := util.AlphabetChars(stream, masterSecretIDLen+masterSecretLen)
	if err != nil {
		return nil, fmt.Errorf("expanding secret material: %w", err)
	}

	return &masterSecret{
		version: masterSecretVersion,
		id:      material[:masterSecretIDLen],
		secret:  []byte(material[masterSecretIDLen:]),
	}, nil
}
