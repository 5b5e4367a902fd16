package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)
	assert.Len(t, id.PrivateKey, 64)
	assert.Len(t, id.PublicKey, 64)
}

func TestFromPrivateKeyDeterministic(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	again, err := FromPrivateKey(id.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, id.PublicKey, again.PublicKey)
}

func TestFromPrivateKeyRejectsGarbage(t *testing.T) {
	for _, sk := range []string{"", "zz", "deadbeef", "not hex at all"} {
		_, err := FromPrivateKey(sk)
		assert.Error(t, err, "input %q", sk)
	}
}

func TestLoadOrCreatePersists(t *testing.T) {
	dir := t.TempDir()

	created, err := LoadOrCreate(dir, "")
	require.NoError(t, err)

	// the key file was written with private permissions
	info, err := os.Stat(filepath.Join(dir, KeyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// a second load returns the same identity
	loaded, err := LoadOrCreate(dir, "")
	require.NoError(t, err)
	assert.Equal(t, created.PublicKey, loaded.PublicKey)
	assert.Equal(t, created.PrivateKey, loaded.PrivateKey)
}

func TestLoadOrCreateExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "my.key")

	created, err := LoadOrCreate("", path)
	require.NoError(t, err)

	loaded, err := LoadOrCreate("", path)
	require.NoError(t, err)
	assert.Equal(t, created.PublicKey, loaded.PublicKey)
}
