// Package secrets acquires the formatted master secret from the operator's
// configured source. Secret unavailability is fatal to callers: the process
// must not serve requests without a valid signing secret.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jmcleod/ironshield/keyring"
)

// Source supplies the formatted master secret string. Fetch is called at
// startup and again on operator-triggered rotation; implementations must
// tolerate repeated calls.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// ErrNotFound reports that the configured source holds no secret.
var ErrNotFound = errors.New("secrets: secret not found")

// Load fetches and parses the master secret from a source.
func Load(ctx context.Context, src Source) (keyring.MasterSecret, error) {
	raw, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching master secret: %w", err)
	}
	secret, err := keyring.ParseMasterSecret(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing master secret: %w", err)
	}
	return secret, nil
}

// EnvSource reads the secret from a named environment variable.
type EnvSource struct {
	Name string
}

func (s EnvSource) Fetch(_ context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(s.Name))
	if v == "" {
		return "", fmt.Errorf("environment variable %s not set: %w", s.Name, ErrNotFound)
	}
	return v, nil
}

// FileSource reads the first line of a file, typically a mounted secret.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) (string, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}
	line, _, _ := strings.Cut(string(b), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("secret file %s is empty: %w", s.Path, ErrNotFound)
	}
	return line, nil
}

// Static is a fixed secret, for tests and examples.
type Static string

func (s Static) Fetch(_ context.Context) (string, error) {
	if s == "" {
		return "", ErrNotFound
	}
	return string(s), nil
}
