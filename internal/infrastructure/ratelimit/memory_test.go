package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestAllowUpToQuotaThenReject(t *testing.T) {
	store := NewMemoryStore(5, time.Hour)

	for i := 1; i <= 5; i++ {
		decision := store.Allow("client-a")
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if decision.Remaining != 5-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 5-i, decision.Remaining)
		}
	}

	decision := store.Allow("client-a")
	if decision.Allowed {
		t.Fatalf("sixth request should be rejected")
	}
	if decision.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", decision.Remaining)
	}
	if decision.ResetAt < time.Now().UnixMilli() {
		t.Fatalf("resetAt should not be in the past")
	}
}

func TestRejectionDoesNotMutateCount(t *testing.T) {
	store := NewMemoryStore(1, time.Hour)
	store.Allow("client-a")

	first := store.Allow("client-a")
	second := store.Allow("client-a")
	if first.Allowed || second.Allowed {
		t.Fatalf("requests over quota must be rejected")
	}
	if first.ResetAt != second.ResetAt {
		t.Fatalf("rejected requests must not move the window")
	}
}

func TestWindowResetStartsFreshRecord(t *testing.T) {
	store := NewMemoryStore(2, time.Hour)
	current := time.Now()
	store.now = func() time.Time { return current }

	store.Allow("client-a")
	store.Allow("client-a")
	if store.Allow("client-a").Allowed {
		t.Fatalf("quota should be exhausted")
	}

	current = current.Add(time.Hour + time.Minute)
	decision := store.Allow("client-a")
	if !decision.Allowed {
		t.Fatalf("request after window reset should be allowed")
	}
	if decision.Remaining != 1 {
		t.Fatalf("fresh window should start at count=1, remaining=%d", decision.Remaining)
	}
}

func TestClientsAreIndependent(t *testing.T) {
	store := NewMemoryStore(1, time.Hour)
	store.Allow("client-a")

	if store.Allow("client-a").Allowed {
		t.Fatalf("client-a should be exhausted")
	}
	if !store.Allow("client-b").Allowed {
		t.Fatalf("client-b should have its own window")
	}
}

func TestConcurrentAllowNeverOversells(t *testing.T) {
	store := NewMemoryStore(5, time.Hour)

	var wg sync.WaitGroup
	allowed := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- store.Allow("client-a").Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	if count != 5 {
		t.Fatalf("expected exactly 5 allowed requests, got %d", count)
	}
}
