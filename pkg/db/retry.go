package db

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// ErrorClass separates transient database failures from permanent ones.
type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassRetryable
)

// RetryPolicy bounds WithRetry.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}
}

// ClassifyError reports whether err is worth retrying as a whole transaction.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}
	switch sqlState(err) {
	case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
		return ErrorClassRetryable
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return ErrorClassRetryable
	}
	return ErrorClassPermanent
}

// WithRetry re-runs fn while it fails with a retryable error, backing off
// exponentially with jitter. Permanent errors are returned untouched.
func WithRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := policy.BaseDelay
	if backoff <= 0 {
		backoff = time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ClassifyError(err) == ErrorClassPermanent {
			return err
		}
		if attempt == attempts {
			break
		}

		jitter := time.Duration(rand.Int64N(int64(backoff/4) + 1))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", attempts, err)
}
