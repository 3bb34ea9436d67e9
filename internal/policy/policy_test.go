package policy

import (
	"testing"
	"time"

	"github.com/siriyd/SMART-CDN/internal/forecast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultConfig(), zap.NewNop())
}

func edge(id string, capacityMB, usedMB int) EdgeConstraint {
	return EdgeConstraint{EdgeID: id, CacheCapacityMB: capacityMB, CurrentUsageMB: usedMB, IsActive: true}
}

func TestEngine_PrefetchPlan(t *testing.T) {
	edges := []EdgeConstraint{edge("e1", 100, 0)}

	t.Run("forecast below threshold is skipped", func(t *testing.T) {
		e := newTestEngine()

		plan, err := e.PrefetchPlan(
			[]forecast.Forecast{{ContentID: "c1", PredictedRequests: 1, Confidence: 0.9}},
			edges, nil)

		require.NoError(t, err)
		assert.Empty(t, plan)
	})

	t.Run("low confidence is skipped", func(t *testing.T) {
		e := newTestEngine()

		plan, err := e.PrefetchPlan(
			[]forecast.Forecast{{ContentID: "c1", PredictedRequests: 30, Confidence: 0.1}},
			edges, nil)

		require.NoError(t, err)
		assert.Empty(t, plan)
	})

	t.Run("edge without headroom is excluded", func(t *testing.T) {
		e := newTestEngine()
		full := []EdgeConstraint{edge("e1", 100, 100)}
		meta := []forecast.ContentMetadata{{ContentID: "c1", SizeKB: 100}}

		plan, err := e.PrefetchPlan(
			[]forecast.Forecast{{ContentID: "c1", PredictedRequests: 30, Confidence: 0.9}},
			full, meta)

		require.NoError(t, err)
		assert.Empty(t, plan, "zero free space fails the 80% headroom rule")
	})

	t.Run("unknown size always fits an edge with free space", func(t *testing.T) {
		e := newTestEngine()

		plan, err := e.PrefetchPlan(
			[]forecast.Forecast{{ContentID: "c1", PredictedRequests: 30, Confidence: 0.9}},
			edges, nil)

		require.NoError(t, err)
		require.Len(t, plan, 1)
		assert.Equal(t, []string{"e1"}, plan[0].TargetEdges)
	})

	t.Run("ttl follows the popularity tiers", func(t *testing.T) {
		e := newTestEngine()
		forecasts := []forecast.Forecast{
			{ContentID: "blazing", PredictedRequests: 60, Confidence: 0.9},
			{ContentID: "hot", PredictedRequests: 30, Confidence: 0.9},
			{ContentID: "warm", PredictedRequests: 15, Confidence: 0.9},
			{ContentID: "mild", PredictedRequests: 5, Confidence: 0.9},
		}

		plan, err := e.PrefetchPlan(forecasts, edges, nil)

		require.NoError(t, err)
		require.Len(t, plan, 4)
		assert.Equal(t, 86400, plan[0].TTLSeconds)
		assert.Equal(t, 60479, plan[1].TTLSeconds) // int(0.7 * max), float truncation
		assert.Equal(t, 43200, plan[2].TTLSeconds) // 0.5 * max
		assert.Equal(t, 25920, plan[3].TTLSeconds) // 0.3 * max

		for _, d := range plan {
			assert.GreaterOrEqual(t, d.TTLSeconds, e.cfg.MinTTL)
			assert.LessOrEqual(t, d.TTLSeconds, e.cfg.MaxTTL)
		}
	})

	t.Run("priority is twice predicted, capped at 100", func(t *testing.T) {
		e := newTestEngine()
		forecasts := []forecast.Forecast{
			{ContentID: "big", PredictedRequests: 60, Confidence: 0.9},
			{ContentID: "small", PredictedRequests: 20, Confidence: 0.9},
		}

		plan, err := e.PrefetchPlan(forecasts, edges, nil)

		require.NoError(t, err)
		require.Len(t, plan, 2)
		assert.Equal(t, 100, plan[0].Priority)
		assert.Equal(t, 40, plan[1].Priority)
	})

	t.Run("output is ordered by descending predicted requests", func(t *testing.T) {
		e := newTestEngine()
		forecasts := []forecast.Forecast{
			{ContentID: "low", PredictedRequests: 5, Confidence: 0.9},
			{ContentID: "high", PredictedRequests: 80, Confidence: 0.9},
			{ContentID: "mid", PredictedRequests: 25, Confidence: 0.9},
		}

		plan, err := e.PrefetchPlan(forecasts, edges, nil)

		require.NoError(t, err)
		require.Len(t, plan, 3)
		assert.Equal(t, "high", plan[0].ContentID)
		assert.Equal(t, "mid", plan[1].ContentID)
		assert.Equal(t, "low", plan[2].ContentID)
	})

	t.Run("invalid ttl bounds are rejected", func(t *testing.T) {
		e := NewEngine(Config{PrefetchThreshold: 2, MinTTL: 100, MaxTTL: 10}, zap.NewNop())

		_, err := e.PrefetchPlan(nil, edges, nil)

		assert.Error(t, err)
	})
}

func TestEngine_PrefetchPlanWithFallback(t *testing.T) {
	edges := []EdgeConstraint{edge("e1", 100, 0), edge("e2", 50, 10)}
	now := forecast.NewTimestamp(time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC).UTC())

	t.Run("fallback prefetches the most requested content", func(t *testing.T) {
		e := newTestEngine()
		forecasts := []forecast.Forecast{{ContentID: "v1", PredictedRequests: 1, Confidence: 0.3}}
		events := []forecast.RequestEvent{
			{ContentID: "v1", Timestamp: now},
			{ContentID: "v2", Timestamp: now},
			{ContentID: "v1", Timestamp: now},
		}

		plan, err := e.PrefetchPlanWithFallback(forecasts, edges, nil, events)

		require.NoError(t, err)
		require.Len(t, plan, 1)
		assert.Equal(t, "v1", plan[0].ContentID)
		assert.Equal(t, []string{"e1", "e2"}, plan[0].TargetEdges)
		assert.Equal(t, 25920, plan[0].TTLSeconds) // 0.3 * max
		assert.Equal(t, 4, plan[0].Priority)       // 2 occurrences * 2
	})

	t.Run("ties go to the first encountered content", func(t *testing.T) {
		e := newTestEngine()
		events := []forecast.RequestEvent{
			{ContentID: "b", Timestamp: now},
			{ContentID: "a", Timestamp: now},
		}

		plan, err := e.PrefetchPlanWithFallback(nil, edges, nil, events)

		require.NoError(t, err)
		require.Len(t, plan, 1)
		assert.Equal(t, "b", plan[0].ContentID)
	})

	t.Run("no fallback without events", func(t *testing.T) {
		e := newTestEngine()

		plan, err := e.PrefetchPlanWithFallback(nil, edges, nil, nil)

		require.NoError(t, err)
		assert.Empty(t, plan)
	})

	t.Run("no fallback without edge capacity", func(t *testing.T) {
		e := newTestEngine()
		full := []EdgeConstraint{edge("e1", 100, 100)}
		events := []forecast.RequestEvent{{ContentID: "v1", Timestamp: now}}

		plan, err := e.PrefetchPlanWithFallback(nil, full, nil, events)

		require.NoError(t, err)
		assert.Empty(t, plan)
	})

	t.Run("normal plan suppresses the fallback", func(t *testing.T) {
		e := newTestEngine()
		forecasts := []forecast.Forecast{{ContentID: "hot", PredictedRequests: 30, Confidence: 0.9}}
		events := []forecast.RequestEvent{{ContentID: "other", Timestamp: now}}

		plan, err := e.PrefetchPlanWithFallback(forecasts, edges, nil, events)

		require.NoError(t, err)
		require.Len(t, plan, 1)
		assert.Equal(t, "hot", plan[0].ContentID)
	})
}

func TestEngine_EvictionPlan(t *testing.T) {
	t.Run("snapshot mode evicts exactly the cold entries", func(t *testing.T) {
		e := newTestEngine()
		forecasts := []forecast.Forecast{
			{ContentID: "cold", PredictedRequests: 0, Confidence: 0.1},
			{ContentID: "hot", PredictedRequests: 40, Confidence: 0.9},
		}
		state := []CacheEntryState{
			{EdgeID: "e1", ContentID: "cold", TTLSeconds: 1000},
			{EdgeID: "e1", ContentID: "hot", TTLSeconds: 1000},
			{EdgeID: "e2", ContentID: "cold", TTLSeconds: 500},
		}

		plan, err := e.EvictionPlan(forecasts, nil, state)

		require.NoError(t, err)
		require.Len(t, plan, 2)
		for _, d := range plan {
			assert.Equal(t, "cold", d.ContentID)
			assert.Equal(t, 100, d.Priority)
			assert.Contains(t, d.Reason, "low predicted popularity")
		}
	})

	t.Run("entry with no forecast counts as zero demand", func(t *testing.T) {
		e := newTestEngine()
		state := []CacheEntryState{{EdgeID: "e1", ContentID: "unknown", TTLSeconds: 100}}

		plan, err := e.EvictionPlan(nil, nil, state)

		require.NoError(t, err)
		require.Len(t, plan, 1)
		assert.Equal(t, "unknown", plan[0].ContentID)
	})

	t.Run("without a snapshot cold content is evicted from every edge", func(t *testing.T) {
		e := newTestEngine()
		forecasts := []forecast.Forecast{
			{ContentID: "cold", PredictedRequests: 0, Confidence: 0.1},
			{ContentID: "hot", PredictedRequests: 40, Confidence: 0.9},
		}
		edges := []EdgeConstraint{edge("e1", 100, 0), edge("e2", 100, 0), {EdgeID: ""}}

		plan, err := e.EvictionPlan(forecasts, edges, nil)

		require.NoError(t, err)
		require.Len(t, plan, 2, "cold content crossed with both configured edges")
		assert.Equal(t, "e1", plan[0].EdgeID)
		assert.Equal(t, "e2", plan[1].EdgeID)
	})

	t.Run("priority never goes negative for popular content", func(t *testing.T) {
		// With a high eviction threshold, 100 - predicted would be -50;
		// the emitted priority is clamped to zero.
		cfg := DefaultConfig()
		cfg.EvictionThreshold = 200
		e := NewEngine(cfg, zap.NewNop())
		state := []CacheEntryState{{EdgeID: "e1", ContentID: "popular", TTLSeconds: 100}}
		forecasts := []forecast.Forecast{{ContentID: "popular", PredictedRequests: 150, Confidence: 0.9}}

		plan, err := e.EvictionPlan(forecasts, nil, state)

		require.NoError(t, err)
		require.Len(t, plan, 1)
		assert.Equal(t, 0, plan[0].Priority)
	})
}

func TestEngine_TTLUpdates(t *testing.T) {
	t.Run("no snapshot yields an empty result", func(t *testing.T) {
		e := newTestEngine()

		updates, err := e.TTLUpdates([]forecast.Forecast{{ContentID: "c", PredictedRequests: 60}}, nil)

		require.NoError(t, err)
		assert.Empty(t, updates)
	})

	t.Run("large shift triggers an update", func(t *testing.T) {
		e := newTestEngine()
		state := []CacheEntryState{{EdgeID: "e1", ContentID: "v1", TTLSeconds: 1000}}

		updates, err := e.TTLUpdates([]forecast.Forecast{{ContentID: "v1", PredictedRequests: 0}}, state)

		require.NoError(t, err)
		require.Len(t, updates, 1)
		assert.Equal(t, 25920, updates[0].NewTTLSeconds)
	})

	t.Run("shift inside the 20% band is suppressed", func(t *testing.T) {
		e := newTestEngine()
		state := []CacheEntryState{{EdgeID: "e1", ContentID: "v1", TTLSeconds: 25000}}

		updates, err := e.TTLUpdates([]forecast.Forecast{{ContentID: "v1", PredictedRequests: 5}}, state)

		require.NoError(t, err)
		assert.Empty(t, updates, "25920 vs 25000 is within hysteresis")
	})

	t.Run("zero current ttl defaults to the minimum", func(t *testing.T) {
		e := newTestEngine()
		state := []CacheEntryState{{EdgeID: "e1", ContentID: "v1"}}

		updates, err := e.TTLUpdates(nil, state)

		require.NoError(t, err)
		require.Len(t, updates, 1)
		assert.Equal(t, 25920, updates[0].NewTTLSeconds)
	})

	t.Run("emitted ttls stay inside the configured bounds", func(t *testing.T) {
		e := newTestEngine()
		state := []CacheEntryState{
			{EdgeID: "e1", ContentID: "a", TTLSeconds: 100},
			{EdgeID: "e1", ContentID: "b", TTLSeconds: 100},
		}
		forecasts := []forecast.Forecast{
			{ContentID: "a", PredictedRequests: 500},
			{ContentID: "b", PredictedRequests: 12},
		}

		updates, err := e.TTLUpdates(forecasts, state)

		require.NoError(t, err)
		for _, u := range updates {
			assert.GreaterOrEqual(t, u.NewTTLSeconds, 60)
			assert.LessOrEqual(t, u.NewTTLSeconds, 86400)
		}
	})
}
