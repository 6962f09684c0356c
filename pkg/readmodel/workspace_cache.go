package readmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WorkspaceCache is a Redis write-through cache over the workspace read
// model. A nil *WorkspaceCache is a no-op, so handlers need no nil
// checks.
type WorkspaceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewWorkspaceCache connects to addr. TTL bounds staleness if an
// invalidation is ever lost.
func NewWorkspaceCache(addr, password string, db int, ttl time.Duration) *WorkspaceCache {
	return &WorkspaceCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    ttl,
	}
}

func cacheKey(tenantID, workspaceID string) string {
	return fmt.Sprintf("chronicle:workspace:%s:%s", tenantID, workspaceID)
}

// Set stores the row.
func (c *WorkspaceCache) Set(ctx context.Context, ws Workspace) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("encode cached workspace: %w", err)
	}
	return c.client.Set(ctx, cacheKey(ws.TenantID, ws.WorkspaceID), raw, c.ttl).Err()
}

// Get returns the cached row or ErrNotFound on a miss.
func (c *WorkspaceCache) Get(ctx context.Context, tenantID, workspaceID string) (Workspace, error) {
	if c == nil {
		return Workspace{}, ErrNotFound
	}
	raw, err := c.client.Get(ctx, cacheKey(tenantID, workspaceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Workspace{}, ErrNotFound
	}
	if err != nil {
		return Workspace{}, fmt.Errorf("read cached workspace: %w", err)
	}
	var ws Workspace
	if err := json.Unmarshal(raw, &ws); err != nil {
		return Workspace{}, fmt.Errorf("decode cached workspace: %w", err)
	}
	return ws, nil
}

// Invalidate drops the row so the next lookup goes to the database.
func (c *WorkspaceCache) Invalidate(ctx context.Context, tenantID, workspaceID string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(tenantID, workspaceID)).Err()
}

// Ping verifies connectivity.
func (c *WorkspaceCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *WorkspaceCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
