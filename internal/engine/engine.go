// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/siriyd/SMART-CDN/internal/forecast"
	"github.com/siriyd/SMART-CDN/internal/policy"
	"go.uber.org/zap"
)

const (
	defaultWindowMinutes = 60
	maxWindowMinutes     = 1440
)

// Engine runs one decision cycle: validate the request, forecast
// demand, then derive the prefetch, eviction and TTL plans. Validation
// and prediction failures abort the cycle; a prefetch failure is fatal
// too, while eviction/TTL failures degrade to empty plans so the
// mandatory outputs still go out.
type Engine struct {
	predictor *forecast.Predictor
	policy    *policy.Engine
	mode      string
	clock     clock.Clock
	logger    *zap.Logger
}

// New creates a decision engine. mode tags every response so callers
// can attribute decisions to the arm that produced them.
func New(predictor *forecast.Predictor, policyEngine *policy.Engine, mode string, clk clock.Clock, logger *zap.Logger) *Engine {
	return &Engine{predictor: predictor, policy: policyEngine, mode: mode, clock: clk, logger: logger}
}

// Decide produces a full decision response for the request. An empty
// response with all plans empty is a legitimate success when there is
// no usable data.
func (e *Engine) Decide(ctx context.Context, req DecisionRequest) (DecisionResponse, error) {
	window := req.TimeWindowMinutes
	if window == 0 {
		window = defaultWindowMinutes
	}
	if window < 1 || window > maxWindowMinutes {
		return DecisionResponse{}, &ValidationError{
			Reason: fmt.Sprintf("time_window_minutes must be in [1,%d], got %d", maxWindowMinutes, window),
		}
	}

	logs := validRequestLogs(req.RequestLogs)
	metadata := validMetadata(req.ContentMetadata)
	constraints := validConstraints(req.EdgeConstraints)

	e.logger.Info("decision cycle",
		zap.Int("request_logs", len(logs)),
		zap.Int("content_items", len(metadata)),
		zap.Int("edge_constraints", len(constraints)),
		zap.Int("window_minutes", window))

	if len(logs) == 0 {
		e.logger.Warn("no valid request logs, returning empty decisions")
		return e.emptyResponse(), nil
	}

	forecasts, err := e.predictor.PredictWithMetadata(logs, metadata, window)
	if err != nil {
		return DecisionResponse{}, &PredictionError{Err: err}
	}

	prefetchPlan, err := e.policy.PrefetchPlanWithFallback(forecasts, constraints, metadata, logs)
	if err != nil {
		return DecisionResponse{}, &PolicyError{Stage: "prefetch", Err: err}
	}

	evictionPlan, err := e.policy.EvictionPlan(forecasts, constraints, req.CacheState)
	if err != nil {
		e.logger.Warn("eviction stage failed, continuing with empty plan", zap.Error(err))
		evictionPlan = []policy.EvictionDecision{}
	}

	ttlUpdates, err := e.policy.TTLUpdates(forecasts, req.CacheState)
	if err != nil {
		e.logger.Warn("ttl stage failed, continuing with empty plan", zap.Error(err))
		ttlUpdates = []policy.TTLUpdateDecision{}
	}

	e.logger.Info("decision cycle complete",
		zap.Int("forecasts", len(forecasts)),
		zap.Int("prefetch", len(prefetchPlan)),
		zap.Int("evictions", len(evictionPlan)),
		zap.Int("ttl_updates", len(ttlUpdates)))

	return DecisionResponse{
		PopularityForecast: forecasts,
		PrefetchPlan:       prefetchPlan,
		EvictionPlan:       evictionPlan,
		TTLUpdates:         ttlUpdates,
		DecisionTimestamp:  e.clock.Now().UTC(),
		ModelMode:          e.mode,
	}, nil
}

func (e *Engine) emptyResponse() DecisionResponse {
	return DecisionResponse{
		PopularityForecast: []forecast.Forecast{},
		PrefetchPlan:       []policy.PrefetchDecision{},
		EvictionPlan:       []policy.EvictionDecision{},
		TTLUpdates:         []policy.TTLUpdateDecision{},
		DecisionTimestamp:  e.clock.Now().UTC(),
		ModelMode:          e.mode,
	}
}

// validRequestLogs silently drops entries missing their content id or a
// parsable timestamp; they never reach the predictor.
func validRequestLogs(logs []forecast.RequestEvent) []forecast.RequestEvent {
	valid := make([]forecast.RequestEvent, 0, len(logs))
	for _, l := range logs {
		if l.ContentID == "" || l.Timestamp.IsZero() {
			continue
		}
		valid = append(valid, l)
	}
	return valid
}

func validMetadata(metadata []forecast.ContentMetadata) []forecast.ContentMetadata {
	valid := make([]forecast.ContentMetadata, 0, len(metadata))
	for _, m := range metadata {
		if m.ContentID == "" {
			continue
		}
		valid = append(valid, m)
	}
	return valid
}

// validConstraints drops entries without an edge id and applies the
// wire defaults (capacity 100MB, usage 0, active true).
func validConstraints(constraints []EdgeConstraintInput) []policy.EdgeConstraint {
	valid := make([]policy.EdgeConstraint, 0, len(constraints))
	for _, c := range constraints {
		if c.EdgeID == "" {
			continue
		}
		capacity := defaultEdgeCapacityMB
		if c.CacheCapacityMB != nil {
			capacity = *c.CacheCapacityMB
		}
		usage := 0
		if c.CurrentUsageMB != nil {
			usage = *c.CurrentUsageMB
		}
		active := true
		if c.IsActive != nil {
			active = *c.IsActive
		}
		valid = append(valid, policy.EdgeConstraint{
			EdgeID:          c.EdgeID,
			CacheCapacityMB: capacity,
			CurrentUsageMB:  usage,
			IsActive:        active,
		})
	}
	return valid
}
