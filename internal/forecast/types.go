// internal/forecast/types.go
package forecast

import (
	"encoding/json"
	"time"
)

// Timestamp is a UTC instant that tolerates the timestamp formats seen
// in request logs: RFC 3339 (with or without fractional seconds) and
// naive ISO 8601, which is assumed to be UTC. Values that fail to parse
// decode to the zero time so one bad log line never rejects a whole
// request body; the predictor drops zero timestamps per event.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// NewTimestamp wraps a time.Time, normalized to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// RequestEvent is a single content request observed at an edge.
type RequestEvent struct {
	ContentID string    `json:"content_id"`
	Timestamp Timestamp `json:"request_timestamp"`
	EdgeID    string    `json:"edge_id,omitempty"`
	CacheHit  bool      `json:"is_cache_hit,omitempty"`
}

// Content types that adjust predictions.
const (
	ContentTypeVideo = "video"
	ContentTypeImage = "image"
	ContentTypeHTML  = "html"
	ContentTypeOther = "other"
)

// ContentMetadata describes a content item. Missing entries default to
// the zero value everywhere metadata is consulted.
type ContentMetadata struct {
	ContentID   string `json:"content_id"`
	ContentType string `json:"content_type,omitempty"`
	SizeKB      int    `json:"size_kb,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Forecast is the predicted demand for one content item over the next
// window. Confidence is a coarse sample-count tier, not a statistical
// interval.
type Forecast struct {
	ContentID         string  `json:"content_id"`
	PredictedRequests int     `json:"predicted_requests_next_window"`
	Confidence        float64 `json:"confidence"`
}
