package ledger

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Repository persists ledger entries. Every method runs in the atomic unit
// carried by ctx when there is one.
type Repository interface {
	// Create inserts a single entry.
	Create(ctx context.Context, e *Entry) error

	// CreateBatch inserts entries in one round trip. Must be called inside an
	// atomic unit.
	CreateBatch(ctx context.Context, entries []*Entry) error

	// GetByID returns an entry of the organization; NotFound when absent.
	GetByID(ctx context.Context, organizationID string, entryID id.ID) (*Entry, error)

	// GetForUpdate is GetByID holding a row lock until the unit ends.
	GetForUpdate(ctx context.Context, organizationID string, entryID id.ID) (*Entry, error)

	// Update persists e when its version matches the stored one and bumps it;
	// ConcurrentModification otherwise.
	Update(ctx context.Context, e *Entry) error

	// Delete removes an entry.
	Delete(ctx context.Context, organizationID string, entryID id.ID) error

	// ListByJournal returns the entries produced by a journal, oldest first,
	// locked for update.
	ListByJournal(ctx context.Context, organizationID string, journalID id.ID) ([]*Entry, error)

	// DeleteByJournal removes every entry of a journal.
	DeleteByJournal(ctx context.Context, organizationID string, journalID id.ID) error

	// List returns entries matching filter.
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Entry], error)
}

// ListFilter for ledger entry queries.
type ListFilter struct {
	domain.ListFilter

	OrganizationID    string
	ItemID            *id.ID
	WarehouseID       *id.ID
	JournalID         *id.ID
	Kind              MovementKind
	ReferenceDocument string
}
