// internal/engine/errors.go
package engine

import (
	"errors"
	"fmt"
)

// ValidationError rejects a malformed decision request wholesale. It is
// surfaced to callers as a client error.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid decision request: %s", e.Reason)
}

// PredictionError means forecasting failed; the whole decision cycle is
// aborted and no partial forecast is returned.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

// PolicyError marks a failed policy stage. Only the prefetch stage is
// fatal; eviction and TTL failures degrade to empty plans.
type PolicyError struct {
	Stage string
	Err   error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy %s stage failed: %v", e.Stage, e.Err)
}

func (e *PolicyError) Unwrap() error { return e.Err }

// IsClientError reports whether the error should map to a 4xx response.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
