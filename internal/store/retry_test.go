package store

import (
	"errors"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
)

func TestRetryPolicy_DelayDoublesAndCaps(t *testing.T) {
	p := RetryPolicy{Attempts: 6, Base: 50 * time.Millisecond, Max: 300 * time.Millisecond}

	want := []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond, // capped
		300 * time.Millisecond,
	}
	for retry, d := range want {
		if got := p.Delay(retry); got != d {
			t.Errorf("Delay(%d) = %v, want %v", retry, got, d)
		}
	}
}

func TestRetryPolicy_DelaySurvivesOverflow(t *testing.T) {
	p := RetryPolicy{Attempts: 100, Base: time.Second, Max: 2 * time.Second}

	// A shift large enough to overflow must still return the cap
	if got := p.Delay(70); got != p.Max {
		t.Errorf("Delay(70) = %v, want cap %v", got, p.Max)
	}
}

func TestWithWriteRetry_RetriesBusyThenSucceeds(t *testing.T) {
	s := openTestStore(t)
	s.retry = RetryPolicy{Attempts: 3, Base: time.Millisecond, Max: time.Millisecond}

	calls := 0
	err := s.withWriteRetry(t.Context(), "test", func() error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withWriteRetry() failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithWriteRetry_ExhaustionSurfacesTransient(t *testing.T) {
	s := openTestStore(t)
	s.retry = RetryPolicy{Attempts: 2, Base: time.Millisecond, Max: time.Millisecond}

	calls := 0
	err := s.withWriteRetry(t.Context(), "test", func() error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrLocked}
	})
	if !IsTransient(err) {
		t.Errorf("expected TRANSIENT after exhaustion, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestWithWriteRetry_NonContentionErrorsFailFast(t *testing.T) {
	s := openTestStore(t)
	s.retry = RetryPolicy{Attempts: 5, Base: time.Millisecond, Max: time.Millisecond}

	boom := errors.New("boom")
	calls := 0
	err := s.withWriteRetry(t.Context(), "test", func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", calls)
	}
}

func TestWithWriteRetry_ConstraintErrorsClassified(t *testing.T) {
	s := openTestStore(t)

	err := s.withWriteRetry(t.Context(), "test", func() error {
		return sqlite3.Error{Code: sqlite3.ErrConstraint}
	})
	if !IsConstraint(err) {
		t.Errorf("expected CONSTRAINT_VIOLATED, got %v", err)
	}
}
