package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironshield/keyring"
	"github.com/jmcleod/ironshield/secrets"
)

// resetSecretFlags restores the package-level flag variables after a test
// mutates them.
func resetSecretFlags(t *testing.T) {
	t.Helper()
	origEnv, origFile, origAddr, origPath := secretEnv, secretFile, secretVaultAddr, secretVaultPath
	t.Cleanup(func() {
		secretEnv, secretFile, secretVaultAddr, secretVaultPath = origEnv, origFile, origAddr, origPath
	})
}

func TestSecretSource_DefaultsToEnv(t *testing.T) {
	resetSecretFlags(t)
	secretEnv = "IRONSHIELD_TEST_SECRET"
	secretFile = ""
	secretVaultAddr = ""

	src, err := secretSource()
	require.NoError(t, err)
	env, ok := src.(secrets.EnvSource)
	require.True(t, ok, "expected env source, got %T", src)
	assert.Equal(t, "IRONSHIELD_TEST_SECRET", env.Name)
}

func TestSecretSource_File(t *testing.T) {
	resetSecretFlags(t)
	secretFile = "/run/secrets/ironshield"
	secretVaultAddr = ""

	src, err := secretSource()
	require.NoError(t, err)
	file, ok := src.(secrets.FileSource)
	require.True(t, ok, "expected file source, got %T", src)
	assert.Equal(t, "/run/secrets/ironshield", file.Path)
}

func TestSecretSource_FileAndVaultConflict(t *testing.T) {
	resetSecretFlags(t)
	secretFile = "/run/secrets/ironshield"
	secretVaultAddr = "https://vault.internal:8200"

	_, err := secretSource()
	require.Error(t, err)
}

func TestSecretSource_VaultRequiresPath(t *testing.T) {
	resetSecretFlags(t)
	secretFile = ""
	secretVaultAddr = "https://vault.internal:8200"
	secretVaultPath = ""

	_, err := secretSource()
	require.Error(t, err)
}

func TestSecretSource_EndToEndFile(t *testing.T) {
	resetSecretFlags(t)

	generated, err := keyring.NewMasterSecret()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte(generated.String()+"\n"), 0o600))

	secretFile = path
	secretVaultAddr = ""
	src, err := secretSource()
	require.NoError(t, err)

	loaded, err := secrets.Load(t.Context(), src)
	require.NoError(t, err)
	assert.Equal(t, generated.ID(), loaded.ID())
	assert.Equal(t, generated.String(), loaded.String())
}
