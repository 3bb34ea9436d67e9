package applier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/siriyd/SMART-CDN/internal/edgecache"
	"github.com/siriyd/SMART-CDN/internal/engine"
	"github.com/siriyd/SMART-CDN/internal/policy"
	"github.com/siriyd/SMART-CDN/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubFetcher struct {
	failFor map[string]bool
}

func (s *stubFetcher) FetchContent(ctx context.Context, contentID string) (map[string]interface{}, error) {
	if s.failFor[contentID] {
		return nil, errors.New("origin unavailable")
	}
	return map[string]interface{}{"content_id": contentID, "body": "payload"}, nil
}

func newTestApplier(t *testing.T, edgeIDs ...string) (*Applier, map[string]*edgecache.Cache) {
	t.Helper()
	logger := zap.NewNop()
	edges := make(map[string]*edgecache.Cache, len(edgeIDs))
	for _, id := range edgeIDs {
		edges[id] = edgecache.New(id, store.NewMemoryStore(), time.Hour, logger)
	}
	return New(edges, &stubFetcher{}, time.Second, logger), edges
}

func TestApplier_ApplyDecisions_Tallies(t *testing.T) {
	a, edges := newTestApplier(t, "e1", "e2")
	ctx := context.Background()

	// Arrange: v2 is already cached on e1 so its eviction and TTL update
	// both succeed.
	require.NoError(t, edges["e1"].Set(ctx, "v2", map[string]interface{}{"content_id": "v2"}, time.Hour))

	decisions := engine.DecisionResponse{
		PrefetchPlan: []policy.PrefetchDecision{
			{ContentID: "v1", TargetEdges: []string{"e1", "e2"}, TTLSeconds: 3600, Priority: 4},
		},
		EvictionPlan: []policy.EvictionDecision{
			{EdgeID: "e1", ContentID: "v2", Reason: "low predicted popularity (0 requests)"},
		},
		TTLUpdates: []policy.TTLUpdateDecision{
			{EdgeID: "e1", ContentID: "v2", NewTTLSeconds: 1800},
		},
	}

	// Act
	results := a.ApplyDecisions(ctx, decisions)

	// Assert: one prefetch per target edge, eviction applied before the
	// TTL update so the update finds nothing to refresh.
	assert.Equal(t, Tally{Success: 2, Failed: 0}, results.Prefetch)
	assert.Equal(t, Tally{Success: 1, Failed: 0}, results.Eviction)
	assert.Equal(t, Tally{Success: 0, Failed: 1}, results.TTLUpdates)

	for _, edgeID := range []string{"e1", "e2"} {
		entry, found, err := edges[edgeID].Get(ctx, "v1")
		require.NoError(t, err)
		require.True(t, found, "v1 should be prefetched on %s", edgeID)
		assert.Equal(t, 3600, entry.TTLSeconds)
	}

	exists, err := edges["e1"].Exists(ctx, "v2")
	require.NoError(t, err)
	assert.False(t, exists, "v2 should be evicted from e1")
}

func TestApplier_ApplyDecisions_UnknownEdge(t *testing.T) {
	a, _ := newTestApplier(t, "e1")
	ctx := context.Background()

	decisions := engine.DecisionResponse{
		PrefetchPlan: []policy.PrefetchDecision{
			{ContentID: "v1", TargetEdges: []string{"e1", "ghost"}, TTLSeconds: 600},
		},
		EvictionPlan: []policy.EvictionDecision{
			{EdgeID: "ghost", ContentID: "v1"},
		},
		TTLUpdates: []policy.TTLUpdateDecision{
			{EdgeID: "ghost", ContentID: "v1", NewTTLSeconds: 600},
		},
	}

	results := a.ApplyDecisions(ctx, decisions)

	assert.Equal(t, Tally{Success: 1, Failed: 1}, results.Prefetch)
	assert.Equal(t, Tally{Success: 0, Failed: 1}, results.Eviction)
	assert.Equal(t, Tally{Success: 0, Failed: 1}, results.TTLUpdates)
}

func TestApplier_ApplyDecisions_OriginFetchFailure(t *testing.T) {
	logger := zap.NewNop()
	edges := map[string]*edgecache.Cache{
		"e1": edgecache.New("e1", store.NewMemoryStore(), time.Hour, logger),
	}
	a := New(edges, &stubFetcher{failFor: map[string]bool{"bad": true}}, time.Second, logger)
	ctx := context.Background()

	decisions := engine.DecisionResponse{
		PrefetchPlan: []policy.PrefetchDecision{
			{ContentID: "bad", TargetEdges: []string{"e1"}, TTLSeconds: 600},
			{ContentID: "good", TargetEdges: []string{"e1"}, TTLSeconds: 600},
		},
	}

	results := a.ApplyDecisions(ctx, decisions)

	// Failures are counted and skipped, never retried; later items still
	// get applied.
	assert.Equal(t, Tally{Success: 1, Failed: 1}, results.Prefetch)

	exists, err := edges["e1"].Exists(ctx, "good")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestApplier_ApplyDecisions_NilOrigin(t *testing.T) {
	logger := zap.NewNop()
	edges := map[string]*edgecache.Cache{
		"e1": edgecache.New("e1", store.NewMemoryStore(), time.Hour, logger),
	}
	a := New(edges, nil, 0, logger)
	ctx := context.Background()

	decisions := engine.DecisionResponse{
		PrefetchPlan: []policy.PrefetchDecision{
			{ContentID: "v1", TargetEdges: []string{"e1"}, TTLSeconds: 600},
		},
	}

	results := a.ApplyDecisions(ctx, decisions)

	assert.Equal(t, Tally{Success: 1, Failed: 0}, results.Prefetch)

	entry, found, err := edges["e1"].Get(ctx, "v1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v1", entry.Data["content_id"])
}

func TestApplier_ApplyDecisions_Empty(t *testing.T) {
	a, _ := newTestApplier(t, "e1")

	results := a.ApplyDecisions(context.Background(), engine.DecisionResponse{})

	assert.Equal(t, Results{}, results)
}
