package secrets

import (
	"context"
	"fmt"
	"os"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
)

const defaultVaultField = "master_secret"

// VaultSource reads the secret from a HashiCorp Vault KV path.
type VaultSource struct {
	path  string
	field string

	client *vaultapi.Client
}

// NewVaultSource builds a source reading the given field at the given KV
// path. An empty token falls back to the VAULT_TOKEN environment variable;
// an empty field falls back to "master_secret".
func NewVaultSource(address, token, path, field string) (*VaultSource, error) {
	client, err := vaultapi.NewClient(&vaultapi.Config{
		Address: address,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}

	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token != "" {
		client.SetToken(token)
	}
	if field == "" {
		field = defaultVaultField
	}

	return &VaultSource{
		path:   path,
		field:  field,
		client: client,
	}, nil
}

func (s *VaultSource) Fetch(ctx context.Context) (string, error) {
	secret, err := s.client.Logical().ReadWithContext(ctx, s.path)
	if err != nil {
		return "", fmt.Errorf("reading from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret at vault path %s: %w", s.path, ErrNotFound)
	}

	data := secret.Data
	// KV v2 nests the payload under "data".
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	value, ok := data[s.field]
	if !ok {
		return "", fmt.Errorf("field %s not present at vault path %s: %w", s.field, s.path, ErrNotFound)
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("field %s at vault path %s is not a string", s.field, s.path)
	}
	return str, nil
}
