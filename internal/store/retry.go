package store

import (
	"context"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

// RetryPolicy bounds the exponential backoff applied to writes that lose a
// lock race with another writer. Reads never retry: under WAL they either
// succeed immediately or fail fast.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// Base is the delay before the second attempt. Each subsequent delay
	// doubles, capped at Max.
	Base time.Duration

	// Max caps the per-attempt delay.
	Max time.Duration
}

// DefaultRetryPolicy returns the conservative defaults: 5 attempts,
// 50ms base, 1s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, Base: 50 * time.Millisecond, Max: time.Second}
}

// Delay returns the backoff before the given retry (retry 0 is the delay
// after the first failed attempt).
func (p RetryPolicy) Delay(retry int) time.Duration {
	d := p.Base << uint(retry)
	if d > p.Max || d <= 0 {
		return p.Max
	}
	return d
}

// withWriteRetry runs fn, retrying on busy/locked errors per the policy.
// After exhaustion the last error surfaces as a TRANSIENT store error.
// Non-contention errors pass through on the first occurrence.
func (s *Store) withWriteRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < s.retry.Attempts; attempt++ {
		if attempt > 0 {
			delay := s.retry.Delay(attempt - 1)
			s.log.Debug("retrying write after lock contention",
				"op", op, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return classify(err)
		}
	}
	return &StoreError{Code: ErrCodeTransient, Entity: op, Err: err}
}

// isBusy reports whether the error is SQLite lock contention.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// classify maps driver errors onto the store taxonomy. Constraint failures
// become CONSTRAINT_VIOLATED; anything else passes through untouched so
// wrapped store errors (e.g. NOT_FOUND from inside a transaction) survive.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return &StoreError{Code: ErrCodeConstraint, Err: err}
	}
	return err
}
