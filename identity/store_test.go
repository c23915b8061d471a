package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLookup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.Put("sess-1", Identity{Subject: "user-1", Role: "me"})

	id, err := store.Lookup(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "user-1", id.Subject)
	assert.Equal(t, "me", id.Role)
}

func TestMemoryStoreUnknownTokenIsNilNil(t *testing.T) {
	id, err := NewMemoryStore().Lookup(context.Background(), "sess-unknown")
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestMemoryStoreEmptyTokenIsNilNil(t *testing.T) {
	id, err := NewMemoryStore().Lookup(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	store.Put("sess-1", Identity{Subject: "user-1", Role: "me"})
	store.Delete("sess-1")

	id, err := store.Lookup(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, id)
}

// Lookup returns a copy: mutating the result must not affect the store.
func TestMemoryStoreLookupReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put("sess-1", Identity{Subject: "user-1", Role: "me"})

	first, err := store.Lookup(ctx, "sess-1")
	require.NoError(t, err)
	first.Role = "admin"

	second, err := store.Lookup(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "me", second.Role)
}
