package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func retryOnlyPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
		BreakerEnabled:    false,
	}
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	exec := NewExecutor(retryOnlyPolicy())

	attempts := 0
	errTransient := errors.New("upstream hiccup")
	err := exec.Execute(context.Background(), "verify", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, errTransient), RecordFailure: true}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(retryOnlyPolicy())

	attempts := 0
	err := exec.Execute(context.Background(), "verify", func(context.Context) error {
		attempts++
		return errors.New("bad request")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("permanent failure should not be retried, got %d attempts", attempts)
	}
}

func TestExecuteStopsOnContextCancel(t *testing.T) {
	exec := NewExecutor(retryOnlyPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := exec.Execute(ctx, "verify", func(context.Context) error {
		attempts++
		cancel()
		return errors.New("upstream hiccup")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("cancelled context should stop retries, got %d attempts", attempts)
	}
}

func TestBreakerOpensAfterFailureRatio(t *testing.T) {
	exec := NewExecutor(Policy{
		MaxAttempts:          1,
		InitialBackoff:       time.Millisecond,
		MaxBackoff:           time.Millisecond,
		BackoffMultiplier:    2,
		BreakerEnabled:       true,
		BreakerMinRequests:   3,
		BreakerFailureRatio:  0.5,
		BreakerOpenTimeout:   time.Minute,
		BreakerHalfOpenCalls: 1,
	})

	classify := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
	for i := 0; i < 3; i++ {
		_ = exec.Execute(context.Background(), "classify", func(context.Context) error {
			return errors.New("down")
		}, classify)
	}

	err := exec.Execute(context.Background(), "classify", func(context.Context) error {
		return nil
	}, classify)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Fatalf("IsCircuitOpen should report the open state")
	}
}
