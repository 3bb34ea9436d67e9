// internal/engine/types.go
package engine

import (
	"time"

	"github.com/siriyd/SMART-CDN/internal/forecast"
	"github.com/siriyd/SMART-CDN/internal/policy"
)

// Default applied to edge constraints that omit their capacity.
const defaultEdgeCapacityMB = 100

// EdgeConstraintInput is the wire form of an edge constraint. Capacity
// and usage are pointers so "absent" can be defaulted at this boundary
// before the typed constraint reaches the policy engine.
type EdgeConstraintInput struct {
	EdgeID          string `json:"edge_id"`
	CacheCapacityMB *int   `json:"cache_capacity_mb,omitempty"`
	CurrentUsageMB  *int   `json:"current_usage_mb,omitempty"`
	IsActive        *bool  `json:"is_active,omitempty"`
}

// DecisionRequest is the body of POST /decide.
type DecisionRequest struct {
	RequestLogs       []forecast.RequestEvent    `json:"request_logs"`
	ContentMetadata   []forecast.ContentMetadata `json:"content_metadata"`
	EdgeConstraints   []EdgeConstraintInput      `json:"edge_constraints"`
	CacheState        []policy.CacheEntryState   `json:"cache_state,omitempty"`
	TimeWindowMinutes int                        `json:"time_window_minutes"`
}

// DecisionResponse carries the forecast and all three plans. Plans are
// always non-nil so an empty-but-valid decision serializes as [].
type DecisionResponse struct {
	PopularityForecast []forecast.Forecast        `json:"popularity_forecast"`
	PrefetchPlan       []policy.PrefetchDecision  `json:"prefetch_plan"`
	EvictionPlan       []policy.EvictionDecision  `json:"eviction_plan"`
	TTLUpdates         []policy.TTLUpdateDecision `json:"ttl_updates"`
	DecisionTimestamp  time.Time                  `json:"decision_timestamp"`
	ModelMode          string                     `json:"model_mode"`
}
