package redis

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/worklist/model"
	"github.com/hupe1980/worklist/statestore"
)

func TestIdentityEncoding(t *testing.T) {
	id := model.Identity{TableID: -4, RowID: 1234567890123}
	got, err := parseIdentity(formatIdentity(id))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{"", "1", "a:1", "1:b"} {
		_, err := parseIdentity(bad)
		assert.Error(t, err, bad)
	}
}

func TestStateEncoding(t *testing.T) {
	for _, s := range []statestore.State{
		{Status: model.StatusPending},
		{Status: model.StatusDone, Visited: true},
	} {
		got, err := parseState(formatState(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	assert.Equal(t, "done:1", formatState(statestore.State{Status: model.StatusDone, Visited: true}))

	_, err := parseState("done")
	assert.Error(t, err)
	_, err = parseState("later:1")
	assert.Error(t, err)
}

// TestStore_Integration requires a running Redis instance.
// Set REDIS_ADDR to run it.
func TestStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	store := New(client, "test-worklist:")
	defer client.Del(ctx, store.itemsKey("issues"), store.currentKey("issues"))

	doc := statestore.NewDocument()
	doc.Current = &model.Identity{TableID: 1, RowID: 2}
	doc.States[model.Identity{TableID: 1, RowID: 2}] = statestore.State{Status: model.StatusDone, Visited: true}

	require.NoError(t, store.Save(ctx, "issues", doc))

	got, err := store.Load(ctx, "issues")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	require.NoError(t, store.Save(ctx, "issues", statestore.NewDocument()))
	got, err = store.Load(ctx, "issues")
	require.NoError(t, err)
	assert.Empty(t, got.States)
	assert.Nil(t, got.Current)
}
