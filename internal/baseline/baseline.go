// internal/baseline/baseline.go
package baseline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"time"

	"github.com/benbjohnson/clock"
	"github.com/siriyd/SMART-CDN/internal/store"
	"go.uber.org/zap"
)

// Key layout per (edge, content): the payload plus two shadow entries
// used only by baseline eviction, all created with the same TTL so the
// metadata never outlives the payload.
func cacheKey(edgeID, contentID string) string {
	return fmt.Sprintf("edge:%s:content:%s", edgeID, contentID)
}

func accessKey(edgeID, contentID string) string {
	return fmt.Sprintf("edge:%s:access:%s", edgeID, contentID)
}

func freqKey(edgeID, contentID string) string {
	return fmt.Sprintf("edge:%s:freq:%s", edgeID, contentID)
}

func accessPrefix(edgeID string) string { return fmt.Sprintf("edge:%s:access:", edgeID) }
func freqPrefix(edgeID string) string   { return fmt.Sprintf("edge:%s:freq:", edgeID) }
func contentPrefix(edgeID string) string {
	return fmt.Sprintf("edge:%s:content:", edgeID)
}

// Stats summarizes what the baseline arm holds at one edge.
type Stats struct {
	TotalItems     int     `json:"total_items"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	TotalSizeMB    float64 `json:"total_size_mb"`
}

// Cache is the non-AI control arm: a TTL store with LRU/LFU eviction
// driven by access-time and frequency counters instead of forecasts.
// Eviction is on demand over full key scans, not continuous.
type Cache struct {
	store      store.Store
	defaultTTL time.Duration
	clock      clock.Clock
	logger     *zap.Logger
}

// New creates a baseline cache over the given store.
func New(s store.Store, defaultTTL time.Duration, clk clock.Clock, logger *zap.Logger) *Cache {
	return &Cache{store: s, defaultTTL: defaultTTL, clock: clk, logger: logger}
}

// CacheContent stores a payload and initializes its access/frequency
// shadows, all with the same TTL.
func (c *Cache) CacheContent(ctx context.Context, edgeID, contentID, data string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if err := c.store.Set(ctx, cacheKey(edgeID, contentID), data, ttl); err != nil {
		return fmt.Errorf("baseline cache content: %w", err)
	}

	now := strconv.FormatFloat(timeToUnix(c.clock.Now()), 'f', -1, 64)
	if err := c.store.Set(ctx, accessKey(edgeID, contentID), now, ttl); err != nil {
		return fmt.Errorf("baseline cache content: access shadow: %w", err)
	}
	if err := c.store.Set(ctx, freqKey(edgeID, contentID), "1", ttl); err != nil {
		return fmt.Errorf("baseline cache content: freq shadow: %w", err)
	}
	return nil
}

// GetContent reads a payload and, on a hit, refreshes the access shadow
// with the payload's remaining TTL and bumps the frequency counter. The
// increment is atomic at the store; the counter's expiry is then
// re-pinned to the payload's remaining lifetime.
func (c *Cache) GetContent(ctx context.Context, edgeID, contentID string) (string, bool, error) {
	data, ok, err := c.store.Get(ctx, cacheKey(edgeID, contentID))
	if err != nil {
		return "", false, fmt.Errorf("baseline get content: %w", err)
	}
	if !ok {
		return "", false, nil
	}

	remaining, hasTTL, err := c.store.TTL(ctx, cacheKey(edgeID, contentID))
	if err == nil && hasTTL && remaining > 0 {
		now := strconv.FormatFloat(timeToUnix(c.clock.Now()), 'f', -1, 64)
		if err := c.store.Set(ctx, accessKey(edgeID, contentID), now, remaining); err != nil {
			c.logger.Warn("failed to refresh access shadow", zap.String("content_id", contentID), zap.Error(err))
		}
		if _, err := c.store.Increment(ctx, freqKey(edgeID, contentID)); err != nil {
			c.logger.Warn("failed to bump frequency counter", zap.String("content_id", contentID), zap.Error(err))
		} else if _, err := c.store.UpdateTTL(ctx, freqKey(edgeID, contentID), remaining); err != nil {
			c.logger.Warn("failed to re-pin frequency ttl", zap.String("content_id", contentID), zap.Error(err))
		}
	}

	return data, true, nil
}

// EvictLRU removes the oldest-accessed entries at an edge. It is a
// no-op while the edge holds at most maxItems entries; beyond that it
// evicts the maxItems oldest entries, not just the excess. That
// over-eviction matches the deployed behavior this cache is the control
// arm for, so callers and tests rely on it.
func (c *Cache) EvictLRU(ctx context.Context, edgeID string, maxItems int) ([]string, error) {
	keys, err := c.store.Keys(ctx, accessPrefix(edgeID))
	if err != nil {
		return nil, fmt.Errorf("baseline evict lru: %w", err)
	}
	if len(keys) <= maxItems {
		return nil, nil
	}

	type candidate struct {
		accessTime float64
		contentID  string
	}
	var candidates []candidate
	for _, key := range keys {
		contentID := strings.TrimPrefix(key, accessPrefix(edgeID))
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		ts, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{accessTime: ts, contentID: contentID})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].accessTime != candidates[j].accessTime {
			return candidates[i].accessTime < candidates[j].accessTime
		}
		return candidates[i].contentID < candidates[j].contentID
	})

	ids := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		ids = append(ids, cand.contentID)
	}
	return c.evict(ctx, edgeID, firstN(ids, maxItems)), nil
}

// EvictLFU removes the least-frequently-used entries at an edge, with
// the same no-op/over-eviction semantics as EvictLRU.
func (c *Cache) EvictLFU(ctx context.Context, edgeID string, maxItems int) ([]string, error) {
	keys, err := c.store.Keys(ctx, freqPrefix(edgeID))
	if err != nil {
		return nil, fmt.Errorf("baseline evict lfu: %w", err)
	}
	if len(keys) <= maxItems {
		return nil, nil
	}

	type candidate struct {
		freq      int64
		contentID string
	}
	var candidates []candidate
	for _, key := range keys {
		contentID := strings.TrimPrefix(key, freqPrefix(edgeID))
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{freq: n, contentID: contentID})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].freq != candidates[j].freq {
			return candidates[i].freq < candidates[j].freq
		}
		return candidates[i].contentID < candidates[j].contentID
	})

	ids := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		ids = append(ids, cand.contentID)
	}
	return c.evict(ctx, edgeID, firstN(ids, maxItems)), nil
}

func firstN(ids []string, n int) []string {
	if n > len(ids) {
		n = len(ids)
	}
	return ids[:n]
}

// evict deletes the payload and both shadows for each content id.
func (c *Cache) evict(ctx context.Context, edgeID string, contentIDs []string) []string {
	evicted := make([]string, 0, len(contentIDs))
	for _, contentID := range contentIDs {
		if _, err := c.store.Delete(ctx, cacheKey(edgeID, contentID)); err != nil {
			c.logger.Warn("failed to evict payload", zap.String("content_id", contentID), zap.Error(err))
			continue
		}
		_, _ = c.store.Delete(ctx, accessKey(edgeID, contentID))
		_, _ = c.store.Delete(ctx, freqKey(edgeID, contentID))
		evicted = append(evicted, contentID)
	}
	if len(evicted) > 0 {
		c.logger.Info("baseline eviction",
			zap.String("edge_id", edgeID),
			zap.Int("evicted", len(evicted)))
	}
	return evicted
}

// CacheStats scans all payloads at an edge and sums their byte length.
func (c *Cache) CacheStats(ctx context.Context, edgeID string) (Stats, error) {
	keys, err := c.store.Keys(ctx, contentPrefix(edgeID))
	if err != nil {
		return Stats{}, fmt.Errorf("baseline cache stats: %w", err)
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
		TotalItems:     len(keys),
		TotalSizeBytes: total,
		TotalSizeMB:    math.Round(float64(total)/(1024*1024)*100) / 100,
	}, nil
}

func timeToUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
