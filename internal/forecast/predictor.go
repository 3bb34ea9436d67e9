// internal/forecast/predictor.go
package forecast

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Config holds the predictor's smoothing parameters. It is immutable
// after construction.
type Config struct {
	// Beta weights the detected trend when extrapolating the request
	// rate.
	Beta float64
}

// DefaultConfig returns the production smoothing parameters.
func DefaultConfig() Config {
	return Config{Beta: 0.2}
}

// Predictor turns timestamped request events into short-horizon
// popularity forecasts. It is stateless between calls; the clock is
// injected so predictions are deterministic under test.
type Predictor struct {
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger
}

// NewPredictor creates a predictor with an explicit clock.
func NewPredictor(cfg Config, clk clock.Clock, logger *zap.Logger) *Predictor {
	return &Predictor{cfg: cfg, clock: clk, logger: logger}
}

// Predict forecasts per-content demand for the next windowMinutes based
// on the events observed in the last windowMinutes. Events with an
// empty content id or an unparsable timestamp are skipped. An empty
// input produces an empty forecast list, not an error.
func (p *Predictor) Predict(events []RequestEvent, windowMinutes int) ([]Forecast, error) {
	if windowMinutes < 1 {
		return nil, fmt.Errorf("prediction window must be at least 1 minute, got %d", windowMinutes)
	}
	if len(events) == 0 {
		p.logger.Warn("no request events provided for prediction")
		return []Forecast{}, nil
	}

	// Group timestamps by content id, keeping first-seen order so the
	// forecast list is deterministic.
	grouped := make(map[string][]time.Time)
	var order []string
	for _, ev := range events {
		if ev.ContentID == "" || ev.Timestamp.IsZero() {
			continue
		}
		if _, seen := grouped[ev.ContentID]; !seen {
			order = append(order, ev.ContentID)
		}
		grouped[ev.ContentID] = append(grouped[ev.ContentID], ev.Timestamp.UTC())
	}

	now := p.clock.Now().UTC()
	windowStart := now.Add(-time.Duration(windowMinutes) * time.Minute)

	forecasts := make([]Forecast, 0, len(order))
	for _, contentID := range order {
		var recent []time.Time
		for _, ts := range grouped[contentID] {
			if !ts.Before(windowStart) && !ts.After(now) {
				recent = append(recent, ts)
			}
		}

		if len(recent) == 0 {
			forecasts = append(forecasts, Forecast{
				ContentID:         contentID,
				PredictedRequests: 0,
				Confidence:        0.1,
			})
			continue
		}

		sort.Slice(recent, func(i, j int) bool { return recent[i].Before(recent[j]) })

		// A single observation counts as exactly one request over the
		// whole window. Computed directly rather than as
		// (1/window)*window, which truncates to 0 whenever 1/window is
		// not exactly representable (window 49, 98, ...).
		n := len(recent)
		var predicted int
		if n == 1 {
			predicted = 1
		} else {
			// Base rate in requests per minute.
			var rate float64
			span := recent[n-1].Sub(recent[0]).Minutes()
			if span > 0 {
				rate = float64(n) / span
			} else {
				rate = float64(n)
			}

			predictedRate := rate
			if n >= 3 {
				mid := n / 2
				firstRate := float64(mid) / math.Max(recent[mid].Sub(recent[0]).Minutes(), 1)
				secondRate := float64(n-mid) / math.Max(recent[n-1].Sub(recent[mid]).Minutes(), 1)
				predictedRate = rate + (secondRate-firstRate)*p.cfg.Beta
			}

			predicted = int(predictedRate * float64(windowMinutes))
			if predicted < 0 {
				predicted = 0
			}
		}

		forecasts = append(forecasts, Forecast{
			ContentID:         contentID,
			PredictedRequests: predicted,
			Confidence:        confidenceTier(n),
		})
	}

	p.logger.Info("generated popularity forecasts", zap.Int("count", len(forecasts)))
	return forecasts, nil
}

// PredictWithMetadata runs Predict and then adjusts each forecast with
// content metadata: video skews demand up, images down, and very large
// items lose confidence.
func (p *Predictor) PredictWithMetadata(events []RequestEvent, metadata []ContentMetadata, windowMinutes int) ([]Forecast, error) {
	forecasts, err := p.Predict(events, windowMinutes)
	if err != nil {
		return nil, err
	}

	lookup := make(map[string]ContentMetadata, len(metadata))
	for _, m := range metadata {
		if m.ContentID != "" {
			lookup[m.ContentID] = m
		}
	}

	for i := range forecasts {
		meta, ok := lookup[forecasts[i].ContentID]
		if !ok {
			continue
		}

		switch meta.ContentType {
		case ContentTypeVideo:
			forecasts[i].PredictedRequests = int(float64(forecasts[i].PredictedRequests) * 1.2)
		case ContentTypeImage:
			forecasts[i].PredictedRequests = int(float64(forecasts[i].PredictedRequests) * 0.8)
		}

		// Large items are less likely to stay cached.
		if meta.SizeKB > 5000 {
			forecasts[i].Confidence = round2(math.Max(0.1, forecasts[i].Confidence-0.1))
		}
	}

	return forecasts, nil
}

// confidenceTier maps the in-window sample count to a coarse
// reliability score.
func confidenceTier(samples int) float64 {
	switch {
	case samples >= 10:
		return 0.9
	case samples >= 5:
		return 0.7
	case samples >= 2:
		return 0.5
	case samples >= 1:
		return 0.3
	default:
		return 0.2
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
