// internal/policy/policy.go
package policy

import (
	"fmt"
	"math"
	"sort"

	"github.com/siriyd/SMART-CDN/internal/forecast"
	"go.uber.org/zap"
)

// Config holds the policy thresholds. It is immutable after
// construction; all call sites share the same bounds.
type Config struct {
	// PrefetchThreshold is the minimum predicted requests to consider a
	// forecast for prefetching.
	PrefetchThreshold int
	// EvictionThreshold is the predicted-request count at or below which
	// cached content is evicted.
	EvictionThreshold int
	// MinTTL and MaxTTL bound every TTL this engine emits, in seconds.
	MinTTL int
	MaxTTL int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		PrefetchThreshold: 2,
		EvictionThreshold: 0,
		MinTTL:            60,
		MaxTTL:            86400,
	}
}

func (c Config) validate() error {
	if c.MinTTL < 1 || c.MaxTTL < c.MinTTL {
		return fmt.Errorf("invalid ttl bounds: min=%d max=%d", c.MinTTL, c.MaxTTL)
	}
	return nil
}

// minimum confidence for a forecast to drive a prefetch.
const prefetchConfidenceFloor = 0.2

// headroomMargin keeps prefetched content under 80% of an edge's free
// space.
const headroomMargin = 0.8

// EdgeConstraint is an edge node's declared capacity, after boundary
// defaulting (capacity 100MB, usage 0 when unspecified).
type EdgeConstraint struct {
	EdgeID          string `json:"edge_id"`
	CacheCapacityMB int    `json:"cache_capacity_mb"`
	CurrentUsageMB  int    `json:"current_usage_mb"`
	IsActive        bool   `json:"is_active"`
}

// FreeMB is the remaining capacity at the edge.
func (e EdgeConstraint) FreeMB() int {
	return e.CacheCapacityMB - e.CurrentUsageMB
}

// CacheEntryState is one (edge, content) pair currently cached, as
// reported by a caller that has visibility into edge state.
type CacheEntryState struct {
	EdgeID     string `json:"edge_id"`
	ContentID  string `json:"content_id"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// PrefetchDecision instructs the applier to push content to edges.
type PrefetchDecision struct {
	ContentID   string   `json:"content_id"`
	TargetEdges []string `json:"target_edges"`
	TTLSeconds  int      `json:"ttl_seconds"`
	Priority    int      `json:"priority"`
}

// EvictionDecision instructs the applier to drop content from an edge.
type EvictionDecision struct {
	EdgeID    string `json:"edge_id"`
	ContentID string `json:"content_id"`
	Reason    string `json:"reason"`
	Priority  int    `json:"priority"`
}

// TTLUpdateDecision refreshes the TTL of an already-cached entry.
type TTLUpdateDecision struct {
	EdgeID        string `json:"edge_id"`
	ContentID     string `json:"content_id"`
	NewTTLSeconds int    `json:"new_ttl_seconds"`
}

// Engine turns forecasts and edge constraints into concrete cache
// actions.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// NewEngine creates a policy engine with the given thresholds.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// PrefetchPlan selects forecasts above the prefetch threshold and
// targets every edge with enough headroom. Output is ordered by
// descending predicted requests (ties keep forecast order).
func (e *Engine) PrefetchPlan(forecasts []forecast.Forecast, constraints []EdgeConstraint, metadata []forecast.ContentMetadata) ([]PrefetchDecision, error) {
	if err := e.cfg.validate(); err != nil {
		return nil, err
	}

	metaLookup := metadataLookup(metadata)

	sorted := make([]forecast.Forecast, len(forecasts))
	copy(sorted, forecasts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PredictedRequests > sorted[j].PredictedRequests
	})

	plan := make([]PrefetchDecision, 0)
	for _, f := range sorted {
		if f.PredictedRequests < e.cfg.PrefetchThreshold || f.Confidence < prefetchConfidenceFloor {
			continue
		}

		sizeKB := 0
		if meta, ok := metaLookup[f.ContentID]; ok {
			sizeKB = meta.SizeKB
		}

		targets := eligibleEdges(constraints, sizeKB)
		if len(targets) == 0 {
			e.logger.Debug("skipping prefetch, no edge capacity", zap.String("content_id", f.ContentID))
			continue
		}

		plan = append(plan, PrefetchDecision{
			ContentID:   f.ContentID,
			TargetEdges: targets,
			TTLSeconds:  e.clampTTL(e.tierTTL(f.PredictedRequests)),
			Priority:    capPriority(f.PredictedRequests * 2),
		})
	}

	e.logger.Info("generated prefetch plan", zap.Int("decisions", len(plan)))
	return plan, nil
}

// PrefetchPlanWithFallback guarantees at least one prefetch decision
// whenever there is traffic and an edge with capacity: if the normal
// plan is empty, the single most-requested content id is prefetched at
// a moderate TTL. This deliberately bypasses the prefetch threshold.
func (e *Engine) PrefetchPlanWithFallback(forecasts []forecast.Forecast, constraints []EdgeConstraint, metadata []forecast.ContentMetadata, events []forecast.RequestEvent) ([]PrefetchDecision, error) {
	plan, err := e.PrefetchPlan(forecasts, constraints, metadata)
	if err != nil {
		return nil, err
	}
	if len(plan) > 0 || len(events) == 0 {
		return plan, nil
	}

	contentID, count := mostRequested(events)
	if contentID == "" {
		return plan, nil
	}

	// Unknown content defaults to 100KB for the capacity check.
	sizeKB := 100
	if meta, ok := metadataLookup(metadata)[contentID]; ok {
		sizeKB = meta.SizeKB
	}

	targets := eligibleEdges(constraints, sizeKB)
	if len(targets) == 0 {
		return plan, nil
	}

	decision := PrefetchDecision{
		ContentID:   contentID,
		TargetEdges: targets,
		TTLSeconds:  e.clampTTL(int(float64(e.cfg.MaxTTL) * 0.3)),
		Priority:    capPriority(count * 2),
	}
	e.logger.Info("fallback prefetch for most requested content",
		zap.String("content_id", contentID),
		zap.Int("request_count", count),
		zap.Int("target_edges", len(targets)))

	return append(plan, decision), nil
}

// EvictionPlan flags low-popularity content for removal. With a cache
// state snapshot it evicts exactly the snapshot entries whose forecast
// is at or below the eviction threshold; without one it conservatively
// evicts low-forecast content from every configured edge.
func (e *Engine) EvictionPlan(forecasts []forecast.Forecast, constraints []EdgeConstraint, cacheState []CacheEntryState) ([]EvictionDecision, error) {
	if err := e.cfg.validate(); err != nil {
		return nil, err
	}

	forecastLookup := make(map[string]forecast.Forecast, len(forecasts))
	for _, f := range forecasts {
		forecastLookup[f.ContentID] = f
	}

	plan := make([]EvictionDecision, 0)
	if len(cacheState) > 0 {
		for _, entry := range cacheState {
			predicted := forecastLookup[entry.ContentID].PredictedRequests
			if predicted <= e.cfg.EvictionThreshold {
				plan = append(plan, e.evictionDecision(entry.EdgeID, entry.ContentID, predicted))
			}
		}
	} else {
		for _, f := range forecasts {
			if f.PredictedRequests > e.cfg.EvictionThreshold {
				continue
			}
			for _, c := range constraints {
				if c.EdgeID == "" {
					continue
				}
				plan = append(plan, e.evictionDecision(c.EdgeID, f.ContentID, f.PredictedRequests))
			}
		}
	}

	e.logger.Info("generated eviction plan", zap.Int("decisions", len(plan)))
	return plan, nil
}

func (e *Engine) evictionDecision(edgeID, contentID string, predicted int) EvictionDecision {
	return EvictionDecision{
		EdgeID:    edgeID,
		ContentID: contentID,
		Reason:    fmt.Sprintf("low predicted popularity (%d requests)", predicted),
		Priority:  clampPriority(100 - predicted),
	}
}

// TTLUpdates recomputes the tiered TTL for each cached entry and emits
// an update only when it moves by more than 20% of the current TTL, a
// hysteresis band that avoids refresh thrashing. Without a snapshot the
// result is empty, not an error.
func (e *Engine) TTLUpdates(forecasts []forecast.Forecast, cacheState []CacheEntryState) ([]TTLUpdateDecision, error) {
	if err := e.cfg.validate(); err != nil {
		return nil, err
	}

	updates := make([]TTLUpdateDecision, 0)
	if len(cacheState) == 0 {
		return updates, nil
	}

	forecastLookup := make(map[string]forecast.Forecast, len(forecasts))
	for _, f := range forecasts {
		forecastLookup[f.ContentID] = f
	}

	for _, entry := range cacheState {
		current := entry.TTLSeconds
		if current == 0 {
			current = e.cfg.MinTTL
		}

		predicted := forecastLookup[entry.ContentID].PredictedRequests
		newTTL := e.clampTTL(e.tierTTL(predicted))

		if math.Abs(float64(newTTL-current)) > float64(current)*0.2 {
			updates = append(updates, TTLUpdateDecision{
				EdgeID:        entry.EdgeID,
				ContentID:     entry.ContentID,
				NewTTLSeconds: newTTL,
			})
		}
	}

	e.logger.Info("generated ttl updates", zap.Int("decisions", len(updates)))
	return updates, nil
}

// tierTTL maps predicted demand to a TTL: hotter content lives longer.
func (e *Engine) tierTTL(predicted int) int {
	switch {
	case predicted > 50:
		return e.cfg.MaxTTL
	case predicted > 20:
		return int(float64(e.cfg.MaxTTL) * 0.7)
	case predicted > 10:
		return int(float64(e.cfg.MaxTTL) * 0.5)
	default:
		return int(float64(e.cfg.MaxTTL) * 0.3)
	}
}

func (e *Engine) clampTTL(ttl int) int {
	if ttl < e.cfg.MinTTL {
		return e.cfg.MinTTL
	}
	if ttl > e.cfg.MaxTTL {
		return e.cfg.MaxTTL
	}
	return ttl
}

func capPriority(p int) int {
	if p > 100 {
		return 100
	}
	return p
}

// clampPriority bounds eviction priority to [0,100]; very popular
// content would otherwise push 100-predicted negative.
func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	return capPriority(p)
}

func metadataLookup(metadata []forecast.ContentMetadata) map[string]forecast.ContentMetadata {
	lookup := make(map[string]forecast.ContentMetadata, len(metadata))
	for _, m := range metadata {
		if m.ContentID != "" {
			lookup[m.ContentID] = m
		}
	}
	return lookup
}

// eligibleEdges returns the edges where the content fits inside the
// headroom margin, in constraint order.
func eligibleEdges(constraints []EdgeConstraint, sizeKB int) []string {
	sizeMB := float64(sizeKB) / 1024
	var targets []string
	for _, c := range constraints {
		if c.EdgeID == "" {
			continue
		}
		if sizeMB < float64(c.FreeMB())*headroomMargin {
			targets = append(targets, c.EdgeID)
		}
	}
	return targets
}

// mostRequested counts occurrences per content id and returns the most
// frequent one, first-encountered winning ties.
func mostRequested(events []forecast.RequestEvent) (string, int) {
	counts := make(map[string]int)
	var order []string
	for _, ev := range events {
		if ev.ContentID == "" {
			continue
		}
		if _, seen := counts[ev.ContentID]; !seen {
			order = append(order, ev.ContentID)
		}
		counts[ev.ContentID]++
	}

	best, bestCount := "", 0
	for _, id := range order {
		if counts[id] > bestCount {
			best, bestCount = id, counts[id]
		}
	}
	return best, bestCount
}
