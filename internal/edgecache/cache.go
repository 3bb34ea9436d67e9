// internal/edgecache/cache.go
package edgecache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/siriyd/SMART-CDN/internal/store"
	"go.uber.org/zap"
)

// ContentKey builds the store key for a content payload at an edge.
// The access/frequency shadow keys used by the baseline arm share this
// namespace layout.
func ContentKey(edgeID, contentID string) string {
	return fmt.Sprintf("edge:%s:content:%s", edgeID, contentID)
}

// ContentKeyPrefix is the scan prefix for all payloads at an edge.
func ContentKeyPrefix(edgeID string) string {
	return fmt.Sprintf("edge:%s:content:", edgeID)
}

// Entry is the envelope stored for each cached payload.
type Entry struct {
	Data       map[string]interface{} `json:"data"`
	CachedAt   time.Time              `json:"cached_at"`
	EdgeID     string                 `json:"edge_id"`
	TTLSeconds int                    `json:"ttl_seconds"`
}

// Stats summarizes the cache contents of one edge. Computed by a full
// key scan, acceptable only at simulation scale.
type Stats struct {
	EdgeID      string  `json:"edge_id"`
	CachedItems int     `json:"cached_items"`
	SizeBytes   int64   `json:"estimated_size_bytes"`
	SizeMB      float64 `json:"estimated_size_mb"`
}

// Cache exposes TTL cache primitives for a single edge node. All
// operations are pure key-level effects within the edge's namespace.
type Cache struct {
	edgeID     string
	store      store.Store
	defaultTTL time.Duration
	logger     *zap.Logger
}

// New creates a cache bound to one edge node.
func New(edgeID string, s store.Store, defaultTTL time.Duration, logger *zap.Logger) *Cache {
	return &Cache{edgeID: edgeID, store: s, defaultTTL: defaultTTL, logger: logger}
}

// EdgeID returns the edge this cache is bound to.
func (c *Cache) EdgeID() string { return c.edgeID }

// Get returns the cached entry for a content id. A miss is (nil, false,
// nil). A corrupt payload is deleted and reported as a miss.
func (c *Cache) Get(ctx context.Context, contentID string) (*Entry, bool, error) {
	key := ContentKey(c.edgeID, contentID)
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("edge cache get %s: %w", contentID, err)
	}
	if !ok {
		c.logger.Debug("cache miss", zap.String("edge_id", c.edgeID), zap.String("content_id", contentID))
		return nil, false, nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Error("corrupt cache entry, deleting",
			zap.String("edge_id", c.edgeID),
			zap.String("content_id", contentID),
			zap.Error(err))
		_, _ = c.store.Delete(ctx, key)
		return nil, false, nil
	}

	c.logger.Debug("cache hit", zap.String("edge_id", c.edgeID), zap.String("content_id", contentID))
	return &entry, true, nil
}

// Set stores a payload with the given TTL; a non-positive TTL falls
// back to the cache's default.
func (c *Cache) Set(ctx context.Context, contentID string, data map[string]interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	entry := Entry{
		Data:       data,
		CachedAt:   time.Now().UTC(),
		EdgeID:     c.edgeID,
		TTLSeconds: int(ttl.Seconds()),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("edge cache set %s: marshal: %w", contentID, err)
	}

	if err := c.store.Set(ctx, ContentKey(c.edgeID, contentID), string(raw), ttl); err != nil {
		return fmt.Errorf("edge cache set %s: %w", contentID, err)
	}
	c.logger.Debug("cached content",
		zap.String("edge_id", c.edgeID),
		zap.String("content_id", contentID),
		zap.Duration("ttl", ttl))
	return nil
}

// Delete removes a payload, reporting whether it was present.
func (c *Cache) Delete(ctx context.Context, contentID string) (bool, error) {
	ok, err := c.store.Delete(ctx, ContentKey(c.edgeID, contentID))
	if err != nil {
		return false, fmt.Errorf("edge cache delete %s: %w", contentID, err)
	}
	return ok, nil
}

// Exists reports whether a payload is currently cached.
func (c *Cache) Exists(ctx context.Context, contentID string) (bool, error) {
	ok, err := c.store.Exists(ctx, ContentKey(c.edgeID, contentID))
	if err != nil {
		return false, fmt.Errorf("edge cache exists %s: %w", contentID, err)
	}
	return ok, nil
}

// TTL returns the remaining lifetime of a cached payload; ok is false
// when the content is absent.
func (c *Cache) TTL(ctx context.Context, contentID string) (time.Duration, bool, error) {
	d, ok, err := c.store.TTL(ctx, ContentKey(c.edgeID, contentID))
	if err != nil {
		return 0, false, fmt.Errorf("edge cache ttl %s: %w", contentID, err)
	}
	return d, ok, nil
}

// UpdateTTL refreshes the payload's expiry without rewriting it.
// Returns false when the content is not cached.
func (c *Cache) UpdateTTL(ctx context.Context, contentID string, ttl time.Duration) (bool, error) {
	ok, err := c.store.UpdateTTL(ctx, ContentKey(c.edgeID, contentID), ttl)
	if err != nil {
		return false, fmt.Errorf("edge cache update ttl %s: %w", contentID, err)
	}
	if ok {
		c.logger.Debug("updated ttl",
			zap.String("edge_id", c.edgeID),
			zap.String("content_id", contentID),
			zap.Duration("ttl", ttl))
	}
	return ok, nil
}

// Stats scans all payloads at this edge and sums their byte size.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	keys, err := c.store.Keys(ctx, ContentKeyPrefix(c.edgeID))
	if err != nil {
		return Stats{EdgeID: c.edgeID}, fmt.Errorf("edge cache stats: %w", err)
	}

	var total int64
	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		total += int64(len(raw))
	}

	return Stats{
		EdgeID:      c.edgeID,
		CachedItems: len(keys),
		SizeBytes:   total,
		SizeMB:      math.Round(float64(total)/(1024*1024)*100) / 100,
	}, nil
}

// Clear removes every payload cached at this edge, returning the count.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	keys, err := c.store.Keys(ctx, ContentKeyPrefix(c.edgeID))
	if err != nil {
		return 0, fmt.Errorf("edge cache clear: %w", err)
	}

	deleted := 0
	for _, key := range keys {
		ok, err := c.store.Delete(ctx, key)
		if err != nil {
			continue
		}
		if ok {
			deleted++
		}
	}
	c.logger.Info("cleared edge cache", zap.String("edge_id", c.edgeID), zap.Int("deleted", deleted))
	return deleted, nil
}
