// Package retry implements the segment retry policy: errors are
// classified as transient or fatal, and transient ones are retried with
// capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Class tags an error by how the pipeline should react to it.
type Class int

const (
	// ClassOK means no error.
	ClassOK Class = iota
	// ClassTransient means the operation may succeed if retried.
	ClassTransient
	// ClassFatal means retrying cannot help.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classifier is implemented by errors that carry their own class.
// Provider adapters return classified errors; classification by tag
// always wins over the substring heuristic.
type Classifier interface {
	RetryClass() Class
}

// classifiedError wraps an error with an explicit class.
type classifiedError struct {
	err   error
	class Class
}

func (e *classifiedError) Error() string     { return e.err.Error() }
func (e *classifiedError) Unwrap() error     { return e.err }
func (e *classifiedError) RetryClass() Class { return e.class }

// Transient wraps err as explicitly retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassTransient}
}

// Fatal wraps err as explicitly non-retryable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, class: ClassFatal}
}

// transientFragments is the substring heuristic for opaque errors from
// providers that do not classify. Used only when no Classifier is found
// in the chain.
var transientFragments = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"temporarily unavailable",
	"rate limit",
	"too many requests",
	"status 429",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
	"eof",
}

// Classify determines how the pipeline should react to err.
func Classify(err error) Class {
	if err == nil {
		return ClassOK
	}

	var classifier Classifier
	if errors.As(err, &classifier) {
		return classifier.RetryClass()
	}

	// Context errors are not retryable: the caller gave up.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range transientFragments {
		if strings.Contains(msg, fragment) {
			return ClassTransient
		}
	}
	return ClassFatal
}

// Policy is the backoff schedule for transient errors.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultPolicy returns the pipeline's schedule: 3 attempts,
// min(2s * 2^(n-1), 30s).
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
	}
}

// Delay returns the backoff before retry attempt n (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Do runs fn up to MaxAttempts times, backing off between transient
// failures. onRetry, if set, is called before each backoff with the
// attempt number (1-based) and the error; it persists the per-segment
// retry counter. Fatal errors and context cancellation end immediately.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		switch Classify(lastErr) {
		case ClassOK:
			return nil
		case ClassFatal:
			return lastErr
		}

		if attempt == p.MaxAttempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}

	return fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}
