// internal/applier/applier.go
package applier

import (
	"context"
	"time"

	"github.com/siriyd/SMART-CDN/internal/edgecache"
	"github.com/siriyd/SMART-CDN/internal/engine"
	"go.uber.org/zap"
)

// DefaultApplyTimeout bounds each individual apply call.
const DefaultApplyTimeout = 10 * time.Second

// Tally counts applied and failed items within one decision category.
type Tally struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Results reports how much of a decision set actually landed. Partial
// application is expected; failures are counted, never retried.
type Results struct {
	Prefetch   Tally `json:"prefetch"`
	Eviction   Tally `json:"eviction"`
	TTLUpdates Tally `json:"ttl_updates"`
}

// ContentFetcher supplies the payload to prefetch. In production this
// is the origin (content store); tests stub it.
type ContentFetcher interface {
	FetchContent(ctx context.Context, contentID string) (map[string]interface{}, error)
}

// Applier pushes decision plans into the per-edge caches. Items are
// applied sequentially, each under its own timeout; a hung edge times
// out on its own without blocking the remaining items.
type Applier struct {
	edges   map[string]*edgecache.Cache
	origin  ContentFetcher
	timeout time.Duration
	logger  *zap.Logger
}

// New creates an applier over a pre-populated edge cache map. origin
// may be nil, in which case prefetched entries carry a minimal payload.
func New(edges map[string]*edgecache.Cache, origin ContentFetcher, timeout time.Duration, logger *zap.Logger) *Applier {
	if timeout <= 0 {
		timeout = DefaultApplyTimeout
	}
	return &Applier{edges: edges, origin: origin, timeout: timeout, logger: logger}
}

// ApplyDecisions applies every item of all three plans and returns the
// per-category tallies.
func (a *Applier) ApplyDecisions(ctx context.Context, decisions engine.DecisionResponse) Results {
	var results Results

	for _, d := range decisions.PrefetchPlan {
		for _, edgeID := range d.TargetEdges {
			if a.applyPrefetch(ctx, edgeID, d.ContentID, d.TTLSeconds) {
				results.Prefetch.Success++
			} else {
				results.Prefetch.Failed++
			}
		}
	}

	for _, d := range decisions.EvictionPlan {
		if a.applyEviction(ctx, d.EdgeID, d.ContentID) {
			results.Eviction.Success++
		} else {
			results.Eviction.Failed++
		}
	}

	for _, d := range decisions.TTLUpdates {
		if a.applyTTLUpdate(ctx, d.EdgeID, d.ContentID, d.NewTTLSeconds) {
			results.TTLUpdates.Success++
		} else {
			results.TTLUpdates.Failed++
		}
	}

	a.logger.Info("applied decisions",
		zap.Int("prefetch_ok", results.Prefetch.Success),
		zap.Int("prefetch_failed", results.Prefetch.Failed),
		zap.Int("eviction_ok", results.Eviction.Success),
		zap.Int("eviction_failed", results.Eviction.Failed),
		zap.Int("ttl_ok", results.TTLUpdates.Success),
		zap.Int("ttl_failed", results.TTLUpdates.Failed))
	return results
}

func (a *Applier) applyPrefetch(ctx context.Context, edgeID, contentID string, ttlSeconds int) bool {
	cache, ok := a.edges[edgeID]
	if !ok {
		a.logger.Warn("prefetch target edge not configured", zap.String("edge_id", edgeID))
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	payload := map[string]interface{}{"content_id": contentID}
	if a.origin != nil {
		fetched, err := a.origin.FetchContent(opCtx, contentID)
		if err != nil {
			a.logger.Warn("origin fetch failed",
				zap.String("content_id", contentID),
				zap.String("edge_id", edgeID),
				zap.Error(err))
			return false
		}
		payload = fetched
	}

	if err := cache.Set(opCtx, contentID, payload, time.Duration(ttlSeconds)*time.Second); err != nil {
		a.logger.Warn("prefetch apply failed",
			zap.String("content_id", contentID),
			zap.String("edge_id", edgeID),
			zap.Error(err))
		return false
	}
	a.logger.Debug("prefetched content", zap.String("content_id", contentID), zap.String("edge_id", edgeID))
	return true
}

func (a *Applier) applyEviction(ctx context.Context, edgeID, contentID string) bool {
	cache, ok := a.edges[edgeID]
	if !ok {
		a.logger.Warn("eviction target edge not configured", zap.String("edge_id", edgeID))
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// Deleting an already-absent entry still counts as success: the goal
	// state is reached either way.
	if _, err := cache.Delete(opCtx, contentID); err != nil {
		a.logger.Warn("eviction apply failed",
			zap.String("content_id", contentID),
			zap.String("edge_id", edgeID),
			zap.Error(err))
		return false
	}
	a.logger.Debug("evicted content", zap.String("content_id", contentID), zap.String("edge_id", edgeID))
	return true
}

func (a *Applier) applyTTLUpdate(ctx context.Context, edgeID, contentID string, ttlSeconds int) bool {
	cache, ok := a.edges[edgeID]
	if !ok {
		a.logger.Warn("ttl update target edge not configured", zap.String("edge_id", edgeID))
		return false
	}

	opCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ok, err := cache.UpdateTTL(opCtx, contentID, time.Duration(ttlSeconds)*time.Second)
	if err != nil || !ok {
		a.logger.Warn("ttl update apply failed",
			zap.String("content_id", contentID),
			zap.String("edge_id", edgeID),
			zap.Bool("present", ok),
			zap.Error(err))
		return false
	}
	a.logger.Debug("updated ttl", zap.String("content_id", contentID), zap.String("edge_id", edgeID))
	return true
}
