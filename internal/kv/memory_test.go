package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	var out testDoc

	found, err := store.Load(ctx, 1, "doc", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Save(ctx, 1, "doc", testDoc{Name: "first", Count: 3}))

	found, err = store.Load(ctx, 1, "doc", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, testDoc{Name: "first", Count: 3}, out)

	// Save replaces the prior value.
	require.NoError(t, store.Save(ctx, 1, "doc", testDoc{Name: "second"}))

	out = testDoc{}
	_, err = store.Load(ctx, 1, "doc", &out)
	require.NoError(t, err)
	assert.Equal(t, "second", out.Name)
}

func TestMemoryStoreGuildsIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, 1, "doc", testDoc{Name: "one"}))

	var out testDoc

	found, err := store.Load(ctx, 2, "doc", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStoreDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, 1, "doc", testDoc{Name: "one"}))
	require.NoError(t, store.Delete(ctx, 1, "doc"))

	var out testDoc

	found, err := store.Load(ctx, 1, "doc", &out)
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting a missing document is not an error.
	require.NoError(t, store.Delete(ctx, 1, "doc"))
	require.NoError(t, store.Delete(ctx, 9, "doc"))
}

func TestMemoryStoreKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, 1, "antispam:flags:10", testDoc{}))
	require.NoError(t, store.Save(ctx, 1, "antispam:flags:11", testDoc{}))
	require.NoError(t, store.Save(ctx, 1, "antispam:policy", testDoc{}))
	require.NoError(t, store.Save(ctx, 2, "antispam:flags:12", testDoc{}))

	keys, err := store.Keys(ctx, 1, "antispam:flags:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"antispam:flags:10", "antispam:flags:11"}, keys)

	keys, err = store.Keys(ctx, 1, "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}
