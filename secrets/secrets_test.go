package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironshield/keyring"
)

func testSecretString(t *testing.T) string {
	t.Helper()
	s, err := keyring.NewMasterSecret()
	require.NoError(t, err)
	return s.String()
}

func TestEnvSource(t *testing.T) {
	formatted := testSecretString(t)
	t.Setenv("IRONSHIELD_MASTER_SECRET", formatted)

	got, err := EnvSource{Name: "IRONSHIELD_MASTER_SECRET"}.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, formatted, got)
}

func TestEnvSourceMissing(t *testing.T) {
	_, err := EnvSource{Name: "IRONSHIELD_NO_SUCH_VAR"}.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileSource(t *testing.T) {
	formatted := testSecretString(t)
	path := filepath.Join(t.TempDir(), "master_secret")
	require.NoError(t, os.WriteFile(path, []byte(formatted+"\n"), 0o600))

	got, err := FileSource{Path: path}.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, formatted, got, "trailing newline should be trimmed")
}

func TestFileSourceErrors(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		_, err := FileSource{Path: filepath.Join(t.TempDir(), "absent")}.Fetch(context.Background())
		require.Error(t, err)
	})

	t.Run("Empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty")
		require.NoError(t, os.WriteFile(path, []byte("\n\n"), 0o600))
		_, err := FileSource{Path: path}.Fetch(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStaticSource(t *testing.T) {
	got, err := Static("value").Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	_, err = Static("").Fetch(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad(t *testing.T) {
	formatted := testSecretString(t)

	secret, err := Load(context.Background(), Static(formatted))
	require.NoError(t, err)
	assert.Equal(t, formatted, secret.String())
}

func TestLoadRejectsMalformedSecret(t *testing.T) {
	_, err := Load(context.Background(), Static("not-a-master-secret"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound), "malformed secrets are a parse failure, not absence")
}

func TestLoadPropagatesSourceFailure(t *testing.T) {
	_, err := Load(context.Background(), EnvSource{Name: "IRONSHIELD_NO_SUCH_VAR"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewVaultSourceDefaults(t *testing.T) {
	src, err := NewVaultSource("http://127.0.0.1:8200", "test-token", "secret/data/ironshield", "")
	require.NoError(t, err)
	assert.Equal(t, defaultVaultField, src.field)
	assert.Equal(t, "secret/data/ironshield", src.path)
}
