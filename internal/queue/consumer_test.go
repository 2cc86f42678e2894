package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	fail bool
}

func (h *recordingHandler) Handle(_ context.Context, msg redis.XMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg.Values["type"].(string))
	if h.fail {
		return errors.New("boom")
	}
	return nil
}

func newTestConsumer(t *testing.T, h MessageHandler) (*Consumer, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewConsumer(client, "lapor:cleanup", "lapor-workers", "worker-1", time.Millisecond, zerolog.Nop(), h)
	c.block = 10 * time.Millisecond
	require.NoError(t, c.EnsureGroup(context.Background()))
	return c, client
}

func TestEnsureGroupIsIdempotent(t *testing.T) {
	c, _ := newTestConsumer(t, &recordingHandler{})
	assert.NoError(t, c.EnsureGroup(context.Background()))
}

func TestReadAcksHandledMessages(t *testing.T) {
	ctx := context.Background()
	h := &recordingHandler{}
	c, client := newTestConsumer(t, h)

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "lapor:cleanup", Values: map[string]any{"type": "sweep"}}).Err())
	require.NoError(t, c.read(ctx))

	assert.Equal(t, []string{"sweep"}, h.seen)
	pending, err := client.XPending(ctx, "lapor:cleanup", "lapor-workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestFailedMessagesStayPendingAndAreReclaimed(t *testing.T) {
	ctx := context.Background()
	h := &recordingHandler{fail: true}
	c, client := newTestConsumer(t, h)

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "lapor:cleanup", Values: map[string]any{"type": "remove"}}).Err())
	require.NoError(t, c.read(ctx))

	pending, err := client.XPending(ctx, "lapor:cleanup", "lapor-workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)

	h.mu.Lock()
	h.fail = false
	h.mu.Unlock()
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, c.claimStalled(ctx))
	assert.Equal(t, []string{"remove", "remove"}, h.seen)

	pending, err = client.XPending(ctx, "lapor:cleanup", "lapor-workers").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}
