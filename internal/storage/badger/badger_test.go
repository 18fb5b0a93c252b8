package badger

import (
	"context"
	"testing"

	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreInMemoryRoundTrip(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	_, err = store.Get(ctx, "tracking_registration")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Set(ctx, "tracking_registration", `{"active_user_id":"worker-1"}`))

	value, err := store.Get(ctx, "tracking_registration")
	require.NoError(t, err)
	assert.Equal(t, `{"active_user_id":"worker-1"}`, value)

	require.NoError(t, store.Delete(ctx, "tracking_registration"))
	_, err = store.Get(ctx, "tracking_registration")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStoreClear(t *testing.T) {
	store, err := OpenInMemory()
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", "1"))
	require.NoError(t, store.Set(ctx, "b", "2"))

	require.NoError(t, store.Clear(ctx))

	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = 0

	store, err := Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), "location_queue", "[]"))
	require.NoError(t, store.Close())

	reopened, err := Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(context.Background(), "location_queue")
	require.NoError(t, err)
	assert.Equal(t, "[]", value)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{}, zerolog.Nop())
	assert.Error(t, err)
}
