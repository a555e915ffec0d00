package masterdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotSource loads a park snapshot from the backing store.
type SnapshotSource interface {
	Snapshot(ctx context.Context, tenantID, parkID int64) (ParkSnapshot, error)
}

// SnapshotCache caches park snapshots in Redis in front of a SnapshotSource.
// Master data changes rarely between settlement runs, so a short TTL is enough.
type SnapshotCache struct {
	source SnapshotSource
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache constructs a snapshot cache.
func NewSnapshotCache(source SnapshotSource, client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{source: source, client: client, ttl: ttl}
}

// Snapshot returns the cached park snapshot, loading and caching it on a miss.
// Cache errors degrade to a direct load.
func (c *SnapshotCache) Snapshot(ctx context.Context, tenantID, parkID int64) (ParkSnapshot, error) {
	if c.client == nil {
		return c.source.Snapshot(ctx, tenantID, parkID)
	}
	key := snapshotKey(tenantID, parkID)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var snapshot ParkSnapshot
		if err := json.Unmarshal(payload, &snapshot); err == nil {
			return snapshot, nil
		}
	}

	snapshot, err := c.source.Snapshot(ctx, tenantID, parkID)
	if err != nil {
		return ParkSnapshot{}, err
	}
	if payload, err := json.Marshal(snapshot); err == nil {
		_ = c.client.Set(ctx, key, payload, c.ttl).Err()
	}
	return snapshot, nil
}

// Invalidate drops the cached snapshot for a park.
func (c *SnapshotCache) Invalidate(ctx context.Context, tenantID, parkID int64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, snapshotKey(tenantID, parkID)).Err()
}

func snapshotKey(tenantID, parkID int64) string {
	return fmt.Sprintf("windward:snapshot:%d:%d", tenantID, parkID)
}
