// Package numerator provides the PostgreSQL implementation of the per entity
// type counter behind core/numerator.Generator.
package numerator

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/apperror"
	corenumerator "stockledger/internal/core/numerator"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierSource returns the querier of the atomic unit carried by ctx.
type QuerierSource func(ctx context.Context) Querier

// Service issues sequence values from sys_sequences.
//
// The UPSERT takes a row lock on the counter that is held until the caller's
// transaction ends: a concurrent writer for the same entity type waits, and a
// rolled-back transaction gives its value back. Counters are global per entity
// type, so writers of every organization queue on the same row; callers take
// the sequence as the last lock of their unit.
type Service struct {
	querier QuerierSource
}

// Ensure compile-time interface compliance.
var _ corenumerator.Generator = (*Service)(nil)

// New creates a numerator service.
func New(source QuerierSource) *Service {
	return &Service{querier: source}
}

// Next implements corenumerator.Generator.
func (s *Service) Next(ctx context.Context, entityType string) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("numerator service is not initialized")
	}
	if strings.TrimSpace(entityType) == "" {
		return 0, apperror.NewFieldValidation("entity_type", "is required")
	}

	var num int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (entity_type, current_val)
		VALUES ($1, 1)
		ON CONFLICT (entity_type) DO UPDATE SET current_val = sys_sequences.current_val + 1
		RETURNING current_val
	`, entityType).Scan(&num)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", entityType, err)
	}
	return num, nil
}

// SetNext makes the following Next for entityType return value.
// Used when importing existing documents.
func (s *Service) SetNext(ctx context.Context, entityType string, value int64) error {
	if value < 1 {
		return apperror.NewFieldValidation("value", "must be positive")
	}

	var result int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (entity_type, current_val)
		VALUES ($1, $2)
		ON CONFLICT (entity_type) DO UPDATE SET current_val = $2
		RETURNING current_val
	`, entityType, value-1).Scan(&result)
	if err != nil {
		return fmt.Errorf("set next %s: %w", entityType, err)
	}
	return nil
}
