package idempotency

import (
	"context"
	"sync"
	"time"

	"stockledger/internal/core/apperror"
)

var _ Store = (*MemoryStore)(nil)

type record struct {
	req       Request
	status    Status
	replay    Replay
	updatedAt time.Time
	expiresAt time.Time
}

// MemoryStore keeps idempotency keys in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]*record
	now     func() time.Time
}

// NewMemoryStore creates a store whose keys live for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		records: make(map[string]*record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Acquire implements Store.
func (s *MemoryStore) Acquire(_ context.Context, req Request) (*Replay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.records[req.Key]
	if !ok || now.After(rec.expiresAt) {
		s.records[req.Key] = &record{
			req:       req,
			status:    StatusPending,
			updatedAt: now,
			expiresAt: now.Add(s.ttl),
		}
		return nil, nil
	}

	if rec.req != req {
		return nil, apperror.NewIdempotencyMismatch(req.Key)
	}

	switch rec.status {
	case StatusSuccess, StatusFailed:
		return NormalizeReplay(rec.replay), nil
	default:
		if now.Sub(rec.updatedAt) > StaleAfter {
			rec.updatedAt = now
			return nil, nil
		}
		return nil, apperror.NewIdempotencyConflict(req.Key)
	}
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, key string, replay Replay) error {
	return s.finish(key, StatusSuccess, replay)
}

// Fail implements Store.
func (s *MemoryStore) Fail(_ context.Context, key string, replay Replay) error {
	return s.finish(key, StatusFailed, replay)
}

func (s *MemoryStore) finish(key string, status Status, replay Replay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		rec.status = status
		rec.replay = replay
		rec.updatedAt = s.now()
	}
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok && rec.status == StatusPending {
		delete(s.records, key)
	}
	return nil
}

// CleanupExpired implements Store.
func (s *MemoryStore) CleanupExpired(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for key, rec := range s.records {
		if now.After(rec.expiresAt) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}
