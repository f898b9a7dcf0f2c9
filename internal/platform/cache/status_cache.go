package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/canonify/internal/domain"
	"github.com/phrazzld/canonify/internal/events"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultNamespace prefixes every key written by StatusCache.
	DefaultNamespace = "canonify:status"

	// DefaultTTL applies when NewStatusCache is given a non-positive ttl.
	DefaultTTL = 30 * time.Second
)

// StatusCache is a namespaced Redis cache of file statuses.
type StatusCache struct {
	redis     redis.UniversalClient
	namespace string
	ttl       time.Duration
	logger    *slog.Logger
}

// NewStatusCache wraps an existing client.
func NewStatusCache(client redis.UniversalClient, namespace string, ttl time.Duration, logger *slog.Logger) *StatusCache {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusCache{
		redis:     client,
		namespace: namespace,
		ttl:       ttl,
		logger:    logger.With("component", "status_cache"),
	}
}

// Connect parses url, pings the server and returns a StatusCache on it.
func Connect(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*StatusCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewStatusCache(client, DefaultNamespace, ttl, logger), nil
}

func (c *StatusCache) key(id uuid.UUID) string {
	return c.namespace + ":" + id.String()
}

// Get returns the cached status of id. ok is false on a miss.
func (c *StatusCache) Get(ctx context.Context, id uuid.UUID) (domain.FileStatus, bool, error) {
	val, err := c.redis.Get(ctx, c.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cached status: %w", err)
	}

	status, err := domain.ParseFileStatus(val)
	if err != nil {
		// Unreadable entries are treated as misses and dropped.
		c.logger.Warn("discarding invalid cached status", "file_id", id, "value", val)
		_ = c.Invalidate(ctx, id)
		return "", false, nil
	}
	return status, true, nil
}

// Set caches status for id.
func (c *StatusCache) Set(ctx context.Context, id uuid.UUID, status domain.FileStatus) error {
	if err := c.redis.Set(ctx, c.key(id), string(status), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache status: %w", err)
	}
	return nil
}

// Invalidate drops the entry for id.
func (c *StatusCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.redis.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached status: %w", err)
	}
	return nil
}

// HandleEvent drops the entries of the record named in a
// file.status_changed event and of its parent.
func (c *StatusCache) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != events.TypeFileStatusChanged {
		return nil
	}

	var payload events.FileStatusChanged
	if err := event.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", event.Type, err)
	}

	if err := c.Invalidate(ctx, payload.RecordID); err != nil {
		return err
	}
	if payload.ParentID != nil {
		return c.Invalidate(ctx, *payload.ParentID)
	}
	return nil
}

// Close releases the underlying client.
func (c *StatusCache) Close() error {
	return c.redis.Close()
}
