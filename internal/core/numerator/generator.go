package numerator

import (
	"context"
)

// Generator issues monotonically increasing integers per entity type.
//
// Next must be called inside the atomic unit that creates the entity:
// implementations hold the counter for the rest of the unit, so concurrent
// writers never receive the same value and a rolled-back unit releases its value.
type Generator interface {
	Next(ctx context.Context, entityType string) (int64, error)
}
