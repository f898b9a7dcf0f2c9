package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*StatusCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStatusCache(client, "test", time.Minute, logger), mr
}

func TestStatusCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	_, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, id, domain.FileStatusProcessing))

	status, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.FileStatusProcessing, status)

	raw, err := mr.Get("test:" + id.String())
	require.NoError(t, err)
	assert.Equal(t, "processing", raw)
	assert.Equal(t, time.Minute, mr.TTL("test:"+id.String()))
}

func TestStatusCache_NonPositiveTTLUsesDefault(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewStatusCache(client, "test", 0, nil)
	id := uuid.New()
	require.NoError(t, c.Set(context.Background(), id, domain.FileStatusCompleted))

	assert.Equal(t, DefaultTTL, mr.TTL("test:"+id.String()))
}

func TestStatusCache_Expires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, c.Set(ctx, id, domain.FileStatusUploaded))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, c.Set(ctx, id, domain.FileStatusUploaded))
	require.NoError(t, c.Invalidate(ctx, id))

	_, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusCache_InvalidEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	id := uuid.New()
	require.NoError(t, mr.Set("test:"+id.String(), "bogus"))

	_, ok, err := c.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("test:"+id.String()))
}

func TestStatusCache_ServerDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestStatusCache_HandleEvent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	parentID := uuid.New()
	pageID := uuid.New()

	require.NoError(t, c.Set(ctx, parentID, domain.FileStatusUploaded))
	require.NoError(t, c.Set(ctx, pageID, domain.FileStatusProcessing))

	event, err := events.NewEvent(events.TypeFileStatusChanged, events.FileStatusChanged{
		RecordID: pageID,
		ParentID: &parentID,
		Status:   string(domain.FileStatusCompleted),
	})
	require.NoError(t, err)
	require.NoError(t, c.HandleEvent(ctx, event))

	for _, id := range []uuid.UUID{pageID, parentID} {
		_, ok, err := c.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestStatusCache_HandleEventIgnoresOtherTypes(t *testing.T) {
	c, _ := newTestCache(t)

	err := c.HandleEvent(context.Background(), &events.Event{Type: "other", Payload: []byte("not json")})
	assert.NoError(t, err)
}

func TestStatusCache_ThroughEmitter(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, c.Set(ctx, id, domain.FileStatusProcessing))

	emitter := events.NewInMemoryEventEmitter(slog.New(slog.NewTextHandler(io.Discard, nil)))
	emitter.RegisterHandler(c, events.TypeFileStatusChanged)

	event, err := events.NewEvent(events.TypeFileStatusChanged, events.FileStatusChanged{
		RecordID: id,
		Status:   string(domain.FileStatusFailure),
	})
	require.NoError(t, err)
	require.NoError(t, emitter.EmitEvent(ctx, event))

	_, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "://nope", time.Minute, nil)
	assert.Error(t, err)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := Connect(context.Background(), "redis://"+mr.Addr(), time.Minute, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Set(context.Background(), uuid.New(), domain.FileStatusUploading))
}
