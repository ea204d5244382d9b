package journal

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Repository persists journal documents and their lines.
type Repository interface {
	// Create inserts the document header.
	Create(ctx context.Context, d *Document) error

	// SaveLines replaces all lines of a journal.
	SaveLines(ctx context.Context, journalID id.ID, lines []Line) error

	// GetByID returns a header of the organization; NotFound when absent.
	GetByID(ctx context.Context, organizationID string, journalID id.ID) (*Document, error)

	// GetForUpdate is GetByID holding a row lock until the unit ends.
	GetForUpdate(ctx context.Context, organizationID string, journalID id.ID) (*Document, error)

	// GetLines returns the lines of a journal ordered by line_no.
	GetLines(ctx context.Context, journalID id.ID) ([]Line, error)

	// Update persists the header when its version matches and bumps it.
	Update(ctx context.Context, d *Document) error

	// Delete removes the header together with its lines.
	Delete(ctx context.Context, organizationID string, journalID id.ID) error

	// List returns headers without lines.
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Document], error)
}

// ListFilter for journal queries.
type ListFilter struct {
	domain.ListFilter

	OrganizationID  string
	TransactionType *TransactionType
	VoucherNumber   string
	DateFrom        *time.Time
	DateTo          *time.Time
}
