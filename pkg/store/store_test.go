package store

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glottahq/glotta/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := New(Config{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestGetSetDel(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	require.NoError(t, c.Del(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetTTL(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 30*time.Second))

	mr.FastForward(31 * time.Second)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetNX(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "instance-a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second writer loses.
	ok, err = c.SetNX(ctx, "lock", "instance-b", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	val, err := c.Get(ctx, "lock")
	require.NoError(t, err)
	assert.Equal(t, "instance-a", val)

	// After expiry the lock is free again.
	mr.FastForward(31 * time.Second)
	ok, err = c.SetNX(ctx, "lock", "instance-b", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIncrAppliesTTLOnCreate(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	n, err := c.Incr(ctx, "counter", 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Greater(t, mr.TTL("counter"), time.Duration(0))

	// Subsequent increments do not reset the window.
	mr.FastForward(30 * time.Second)
	n, err = c.Incr(ctx, "counter", 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.LessOrEqual(t, mr.TTL("counter"), 30*time.Second)

	// Counter dies with its window.
	mr.FastForward(31 * time.Second)
	n, err = c.Incr(ctx, "counter", 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIncrBy(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	n, err := c.IncrBy(ctx, "tokens", 500, 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(500), n)
	assert.Greater(t, mr.TTL("tokens"), time.Duration(0))

	n, err = c.IncrBy(ctx, "tokens", 250, 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(750), n)
}

func TestMGetPreservesPositions(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "c", "3", 0))

	vals, err := c.MGet(ctx, "a", "b", "c")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	require.NotNil(t, vals[0])
	assert.Equal(t, "1", *vals[0])
	assert.Nil(t, vals[1])
	require.NotNil(t, vals[2])
	assert.Equal(t, "3", *vals[2])
}

func TestQueueFIFO(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "queue", "first"))
	require.NoError(t, c.LPush(ctx, "queue", "second"))

	n, err := c.LLen(ctx, "queue")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// LPush head, RPop tail: first in, first out.
	val, err := c.RPop(ctx, "queue")
	require.NoError(t, err)
	assert.Equal(t, "first", val)

	val, err = c.RPop(ctx, "queue")
	require.NoError(t, err)
	assert.Equal(t, "second", val)

	_, err = c.RPop(ctx, "queue")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBRPop(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "queue", "job-1"))

	val, ok, err := c.BRPop(ctx, "queue", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "job-1", val)

	// Idle expiry is not an error.
	val, ok, err = c.BRPop(ctx, "queue", 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, val)
}

func TestRPushOrder(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.RPush(ctx, "images", "img-0", "img-1", "img-2"))

	vals, err := c.LRange(ctx, "images", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"img-0", "img-1", "img-2"}, vals)
}

func TestSets(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SAdd(ctx, "processing", "task-1", "task-2"))

	n, err := c.SCard(ctx, "processing")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	members, err := c.SMembers(ctx, "processing")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"task-1", "task-2"}, members)

	require.NoError(t, c.SRem(ctx, "processing", "task-1"))
	n, err = c.SCard(ctx, "processing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestHashes(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "heartbeat", map[string]string{
		"timestamp":    "2026-08-24T10:00:00Z",
		"worker_count": "4",
	}))

	fields, err := c.HGetAll(ctx, "heartbeat")
	require.NoError(t, err)
	assert.Equal(t, "4", fields["worker_count"])

	// Missing hash yields an empty map, not an error.
	fields, err = c.HGetAll(ctx, "absent")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestExistsAndExpire(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	ok, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Expire(ctx, "k", 10*time.Second))
	mr.FastForward(11 * time.Second)

	ok, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPing(t *testing.T) {
	c, mr := newTestClient(t)
	require.NoError(t, c.Ping(context.Background()))

	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
}
