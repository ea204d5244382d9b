package balance

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Repository persists balance rows.
type Repository interface {
	// LockOrCreate returns the row for key under an exclusive lock held until
	// the atomic unit ends, inserting a zero balance first when absent.
	// Must be called inside an atomic unit.
	LockOrCreate(ctx context.Context, key Key) (*Balance, error)

	// Save persists the running totals of a row returned by LockOrCreate.
	Save(ctx context.Context, b *Balance) error

	// Get returns the current row without locking; NotFound when absent.
	Get(ctx context.Context, key Key) (*Balance, error)

	// List returns balances of one organization.
	List(ctx context.Context, filter ListFilter) (domain.ListResult[Balance], error)

	// SummaryByItem aggregates balances per item.
	SummaryByItem(ctx context.Context, organizationID string) ([]ItemSummary, error)

	// CreateOpeningStock inserts an opening stock record.
	CreateOpeningStock(ctx context.Context, o *OpeningStock) error

	// GetOpeningStock returns one opening stock record of an organization.
	GetOpeningStock(ctx context.Context, organizationID string, openingID id.ID) (*OpeningStock, error)

	// GetOpeningStockForUpdate is GetOpeningStock under a row lock held until
	// the atomic unit ends. Must be called inside an atomic unit.
	GetOpeningStockForUpdate(ctx context.Context, organizationID string, openingID id.ID) (*OpeningStock, error)

	// UpdateOpeningStock persists quantity, rate and amount when the stored
	// version equals o.Version, then increments o.Version.
	UpdateOpeningStock(ctx context.Context, o *OpeningStock) error

	// DeleteOpeningStock removes an opening stock record.
	DeleteOpeningStock(ctx context.Context, organizationID string, openingID id.ID) error

	// ListOpeningStock returns opening stock records of one organization.
	ListOpeningStock(ctx context.Context, filter OpeningStockFilter) (domain.ListResult[OpeningStock], error)
}

// ListFilter for stock report queries.
type ListFilter struct {
	domain.ListFilter

	OrganizationID string
	ItemID         *id.ID
	WarehouseID    *id.ID

	// ExcludeZero drops rows whose closing balance is zero
	ExcludeZero bool
}

// OpeningStockFilter for opening stock queries.
type OpeningStockFilter struct {
	domain.ListFilter

	OrganizationID string
	ItemID         *id.ID
	WarehouseID    *id.ID
}
