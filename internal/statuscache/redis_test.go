package statuscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"docextract/internal/common"
	"docextract/internal/job"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisWithClient(client, time.Hour), mr
}

func TestRedisCache_CreateIfAbsent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	rec := Record{ID: "doc1", Status: job.StatusQueued, CreatedAt: time.Now()}

	created, err := c.CreateIfAbsent(ctx, rec)
	require.NoError(t, err)
	require.True(t, created, "first create should win")

	dup := Record{ID: "doc1", Status: job.StatusQueued}
	created, err = c.CreateIfAbsent(ctx, dup)
	require.NoError(t, err)
	require.False(t, created, "second create must be a no-op")

	got, err := c.Get(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, job.StatusQueued, got.Status)
}

func TestRedisCache_SetOverwrites(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.CreateIfAbsent(ctx, Record{ID: "doc2", Status: job.StatusQueued})
	require.NoError(t, err)

	err = c.Set(ctx, Record{ID: "doc2", Status: job.StatusProcessing})
	require.NoError(t, err)

	got, err := c.Get(ctx, "doc2")
	require.NoError(t, err)
	require.Equal(t, job.StatusProcessing, got.Status)
}

func TestRedisCache_GetMiss(t *testing.T) {
	c, _ := newTestCache(t)

	_, err := c.Get(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestRedisCache_Delete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.CreateIfAbsent(ctx, Record{ID: "doc3", Status: job.StatusQueued})
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "doc3"))

	_, err = c.Get(ctx, "doc3")
	require.ErrorIs(t, err, common.ErrNotFound)

	// deleting a missing key is not an error
	require.NoError(t, c.Delete(ctx, "doc3"))
}

func TestRedisCache_EntriesExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisWithClient(client, time.Minute)
	ctx := context.Background()

	_, err := c.CreateIfAbsent(ctx, Record{ID: "doc4", Status: job.StatusQueued})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = c.Get(ctx, "doc4")
	require.ErrorIs(t, err, common.ErrNotFound, "cache entries are ephemeral")
}
