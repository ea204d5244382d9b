package numerator

import (
	"context"
	"sync"
)

// MockGenerator is a test implementation of Generator.
// Without NextFunc it counts per entity type starting at 1.
type MockGenerator struct {
	NextFunc func(ctx context.Context, entityType string) (int64, error)

	mu       sync.Mutex
	counters map[string]int64
}

// Next implements Generator.
func (m *MockGenerator) Next(ctx context.Context, entityType string) (int64, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx, entityType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	m.counters[entityType]++
	return m.counters[entityType], nil
}

// Ensure compile-time interface compliance.
var _ Generator = (*MockGenerator)(nil)
