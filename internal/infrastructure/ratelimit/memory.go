package ratelimit

import (
	"sync"
	"time"

	"github.com/smnthegr/cali-ai/internal/core/domain"
)

type record struct {
	count   int
	resetAt time.Time
}

// MemoryStore is a fixed-window per-client quota store held in process
// memory. Counts are advisory and do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record

	quota  int
	window time.Duration
	now    func() time.Time
}

func NewMemoryStore(quota int, window time.Duration) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*record),
		quota:   quota,
		window:  window,
		now:     time.Now,
	}
}

// Allow performs the read-check-increment atomically for one client key.
// A fresh or expired window starts a new record at count=1; an exhausted
// window is reported without mutating the count.
func (s *MemoryStore) Allow(clientKey string) domain.QuotaDecision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[clientKey]
	if !ok || now.After(rec.resetAt) {
		rec = &record{count: 1, resetAt: now.Add(s.window)}
		s.records[clientKey] = rec
		return domain.QuotaDecision{Allowed: true, Remaining: s.quota - 1, ResetAt: rec.resetAt.UnixMilli()}
	}

	if rec.count >= s.quota {
		return domain.QuotaDecision{Allowed: false, Remaining: 0, ResetAt: rec.resetAt.UnixMilli()}
	}

	rec.count++
	return domain.QuotaDecision{Allowed: true, Remaining: s.quota - rec.count, ResetAt: rec.resetAt.UnixMilli()}
}

// Reset drops all windows. Tests use it between cases.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*record)
}

// Unlimited is a QuotaStore that always allows, the escape hatch for
// trusted callers when enforcement is disabled.
type Unlimited struct{}

func (Unlimited) Allow(string) domain.QuotaDecision {
	return domain.QuotaDecision{Allowed: true, Remaining: -1}
}
