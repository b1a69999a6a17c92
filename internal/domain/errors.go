package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUpstreamUnavailable is a transient upstream failure; retried with backoff.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrRateLimited is returned when the upstream refuses requests for a while.
	ErrRateLimited = errors.New("rate limited")

	ErrDuplicateComponent  = errors.New("duplicate component")
	ErrDuplicateEvaluation = errors.New("open evaluation already exists")
	ErrAlreadyResolved     = errors.New("decision already resolved")
	ErrMissingRationale    = errors.New("rationale and resolver are required")
	ErrNotFound            = errors.New("not found")

	// ErrAnalysisInconsistent marks a malformed upstream diff payload.
	ErrAnalysisInconsistent = errors.New("analysis inconsistent")
	ErrInvalidProfile       = errors.New("invalid evaluation profile")

	// ErrStageSkipped is returned by a StageRunner with nothing to run.
	ErrStageSkipped = errors.New("stage skipped")
	// ErrNotRetryable marks a pipeline execution that cannot be retried.
	ErrNotRetryable = errors.New("execution not retryable")
)

// RateLimitError carries the upstream's hint about when to retry.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried by the detector.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamUnavailable)
}

// NotFoundError names the missing record.
func NotFoundError(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
