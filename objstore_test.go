package flatlake_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flatlake/flatlake"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := flatlake.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "incoming/a.json", []byte(`{"a":1}`)))
	require.NoError(t, store.Put(ctx, "incoming/b.json", []byte(`{"b":2}`)))
	require.NoError(t, store.Put(ctx, "lake/schema=v1/part-0.parquet", []byte{1, 2, 3}))

	b, err := store.Get(ctx, "incoming/a.json")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"a":1}`), b)

	keys, err := store.List(ctx, "incoming/")
	require.NoError(t, err)
	require.Equal(t, []string{"incoming/a.json", "incoming/b.json"}, keys)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	// last write wins under the same key
	require.NoError(t, store.Put(ctx, "incoming/a.json", []byte(`{"a":2}`)))
	b, err = store.Get(ctx, "incoming/a.json")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"a":2}`), b)

	_, err = store.Get(ctx, "incoming/missing.json")
	require.Error(t, err)
}

func TestLocalStoreHonorsContext(t *testing.T) {
	store, err := flatlake.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, store.Put(ctx, "k", nil), context.Canceled)
	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)
	_, err = store.List(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
}
