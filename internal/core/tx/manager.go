// Package tx provides the atomic unit abstraction used by every mutating
// ledger operation. Domain services depend on Manager only; implementations
// live in infrastructure/storage.
package tx

import (
	"context"
)

// Manager demarcates atomic units.
//
// RunInTransaction executes fn within one unit. If fn returns an error every
// write made through ctx is rolled back; otherwise all of them commit together.
// Nested calls reuse the unit already present in ctx, so a service may call
// another service's mutating method without splitting the unit.
//
// Errors returned by RunInTransaction are classified: AppErrors pass through,
// storage races surface as ConcurrencyConflict and any other abort as
// ConsistencyError.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only units.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only unit.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
