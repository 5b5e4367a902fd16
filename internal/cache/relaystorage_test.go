package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRelayStorageCopyOnSave(t *testing.T) {
	storage := NewMemoryRelayStorage("wss://seed.example")
	ctx := context.Background()

	loaded, err := storage.LoadRelays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://seed.example"}, loaded)

	urls := []string{"wss://one.example", "wss://two.example"}
	require.NoError(t, storage.SaveRelays(ctx, urls))

	// mutating the caller's slice must not leak into storage
	urls[0] = "wss://mutated.example"
	loaded, err = storage.LoadRelays(ctx)
	require.NoError(t, err)
	assert.Equal(t, "wss://one.example", loaded[0])

	// mutating the loaded slice must not leak either
	loaded[1] = "wss://also-mutated.example"
	reloaded, err := storage.LoadRelays(ctx)
	require.NoError(t, err)
	assert.Equal(t, "wss://two.example", reloaded[1])
}

func TestFileRelayStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relays.json")
	storage := NewFileRelayStorage(path)
	ctx := context.Background()

	// missing file yields an empty list, not an error
	loaded, err := storage.LoadRelays(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	urls := []string{"wss://one.example", "wss://two.example"}
	require.NoError(t, storage.SaveRelays(ctx, urls))

	loaded, err = storage.LoadRelays(ctx)
	require.NoError(t, err)
	assert.Equal(t, urls, loaded)

	// a new handle over the same path sees the persisted list
	reopened := NewFileRelayStorage(path)
	loaded, err = reopened.LoadRelays(ctx)
	require.NoError(t, err)
	assert.Equal(t, urls, loaded)
}

func TestFileRelayStorageCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "relays.json")
	storage := NewFileRelayStorage(path)
	ctx := context.Background()

	require.NoError(t, storage.SaveRelays(ctx, []string{"wss://one.example"}))
	loaded, err := storage.LoadRelays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://one.example"}, loaded)
}
