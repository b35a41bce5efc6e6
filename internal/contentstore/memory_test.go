package contentstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreContentAddressing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	loc1, err := store.Put(ctx, []byte(`{"a":1}`))
	require.NoError(t, err)

	// Same bytes, same locator.
	loc2, err := store.Put(ctx, []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, loc1, loc2)

	// Different bytes, different locator.
	loc3, err := store.Put(ctx, []byte(`{"a":2}`))
	require.NoError(t, err)
	assert.NotEqual(t, loc1, loc3)

	got, err := store.Get(ctx, loc1)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), got)
}

func TestMemoryStoreGetUnknownLocator(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}
