package memory

import (
	"context"
	"sort"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/balance"
)

const openingStockTable = "opening_stock"

var _ balance.Repository = (*BalanceRepository)(nil)

// BalanceRepository implements balance.Repository.
type BalanceRepository struct {
	store *Store
}

// LockOrCreate implements balance.Repository. The unit already holds the
// whole store, so locking is implicit.
func (r *BalanceRepository) LockOrCreate(ctx context.Context, key balance.Key) (*balance.Balance, error) {
	if !r.store.inUnit(ctx) {
		return nil, errNoUnit
	}
	var out balance.Balance
	err := r.store.write(ctx, "balance.lock:"+key.String(), func(st *state) error {
		b, ok := st.balances[key.String()]
		if !ok {
			if r.store.failure != nil {
				if err := r.store.failure("balance.create"); err != nil {
					return err
				}
			}
			b = *balance.NewBalance(key)
			st.balances[key.String()] = b
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Save implements balance.Repository.
func (r *BalanceRepository) Save(ctx context.Context, b *balance.Balance) error {
	return r.store.write(ctx, "balance.save", func(st *state) error {
		k := b.Key().String()
		if _, ok := st.balances[k]; !ok {
			return apperror.NewNotFound("stock_balances", k)
		}
		st.balances[k] = *b
		return nil
	})
}

// Get implements balance.Repository.
func (r *BalanceRepository) Get(ctx context.Context, key balance.Key) (*balance.Balance, error) {
	var out balance.Balance
	err := r.store.write(ctx, "balance.lock:"+key.String(), func(st *state) error {
		b, ok := st.balances[key.String()]
		if !ok {
			return apperror.NewNotFound("stock_balances", key.String())
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List implements balance.Repository. Rows are ordered by key.
func (r *BalanceRepository) List(ctx context.Context, filter balance.ListFilter) (domain.ListResult[balance.Balance], error) {
	var items []balance.Balance
	_ = r.store.read(ctx, func(st *state) error {
		for _, b := range st.balances {
			if b.OrganizationID != filter.OrganizationID {
				continue
			}
			if filter.ItemID != nil && b.ItemID != *filter.ItemID {
				continue
			}
			if filter.WarehouseID != nil && !id.Equal(b.WarehouseID, filter.WarehouseID) {
				continue
			}
			if filter.ExcludeZero && b.ClosingBalance == 0 {
				continue
			}
			items = append(items, b)
		}
		return nil
	})
	sort.Slice(items, func(i, j int) bool {
		return items[i].Key().String() < items[j].Key().String()
	})
	return paginate(items, filter.ListFilter), nil
}

// SummaryByItem implements balance.Repository.
func (r *BalanceRepository) SummaryByItem(ctx context.Context, organizationID string) ([]balance.ItemSummary, error) {
	byItem := make(map[id.ID]*balance.ItemSummary)
	_ = r.store.read(ctx, func(st *state) error {
		for _, b := range st.balances {
			if b.OrganizationID != organizationID {
				continue
			}
			sum, ok := byItem[b.ItemID]
			if !ok {
				sum = &balance.ItemSummary{ItemID: b.ItemID}
				byItem[b.ItemID] = sum
			}
			sum.OpeningBalance += b.OpeningBalance
			sum.ClosingBalance += b.ClosingBalance
			sum.Received += b.Received
			sum.Warehouses++
		}
		return nil
	})

	out := make([]balance.ItemSummary, 0, len(byItem))
	for _, sum := range byItem {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ItemID.String() < out[j].ItemID.String()
	})
	return out, nil
}

// CreateOpeningStock implements balance.Repository.
func (r *BalanceRepository) CreateOpeningStock(ctx context.Context, o *balance.OpeningStock) error {
	return r.store.write(ctx, "opening_stock.create", func(st *state) error {
		if _, ok := st.openings[o.ID]; ok {
			return apperror.NewBusinessRule("DUPLICATE_OPENING_STOCK", "opening stock already exists").
				WithDetail("id", o.ID)
		}
		st.openings[o.ID] = *o
		return nil
	})
}

// GetOpeningStock implements balance.Repository.
func (r *BalanceRepository) GetOpeningStock(ctx context.Context, organizationID string, openingID id.ID) (*balance.OpeningStock, error) {
	var out balance.OpeningStock
	err := r.store.read(ctx, func(st *state) error {
		o, ok := st.openings[openingID]
		if !ok || o.OrganizationID != organizationID {
			return apperror.NewNotFound(openingStockTable, openingID)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOpeningStockForUpdate implements balance.Repository.
func (r *BalanceRepository) GetOpeningStockForUpdate(ctx context.Context, organizationID string, openingID id.ID) (*balance.OpeningStock, error) {
	if !r.store.inUnit(ctx) {
		return nil, errNoUnit
	}
	return r.GetOpeningStock(ctx, organizationID, openingID)
}

// UpdateOpeningStock implements balance.Repository.
func (r *BalanceRepository) UpdateOpeningStock(ctx context.Context, o *balance.OpeningStock) error {
	return r.store.write(ctx, "opening_stock.update", func(st *state) error {
		stored, ok := st.openings[o.ID]
		if !ok || stored.OrganizationID != o.OrganizationID {
			return apperror.NewNotFound(openingStockTable, o.ID)
		}
		if stored.Version != o.Version {
			return apperror.NewConcurrentModification(openingStockTable, o.ID)
		}
		o.Version++
		stored.Quantity, stored.Rate, stored.Amount = o.Quantity, o.Rate, o.Amount
		stored.IsActive = o.IsActive
		stored.Version, stored.UpdatedAt = o.Version, o.UpdatedAt
		st.openings[o.ID] = stored
		return nil
	})
}

// DeleteOpeningStock implements balance.Repository.
func (r *BalanceRepository) DeleteOpeningStock(ctx context.Context, organizationID string, openingID id.ID) error {
	return r.store.write(ctx, "opening_stock.delete", func(st *state) error {
		o, ok := st.openings[openingID]
		if !ok || o.OrganizationID != organizationID {
			return apperror.NewNotFound(openingStockTable, openingID)
		}
		delete(st.openings, openingID)
		return nil
	})
}

// ListOpeningStock implements balance.Repository. Oldest records come first.
func (r *BalanceRepository) ListOpeningStock(ctx context.Context, filter balance.OpeningStockFilter) (domain.ListResult[balance.OpeningStock], error) {
	var items []balance.OpeningStock
	_ = r.store.read(ctx, func(st *state) error {
		for _, o := range st.openings {
			if o.OrganizationID != filter.OrganizationID {
				continue
			}
			if filter.ItemID != nil && o.ItemID != *filter.ItemID {
				continue
			}
			if filter.WarehouseID != nil && !id.Equal(o.WarehouseID, filter.WarehouseID) {
				continue
			}
			items = append(items, o)
		}
		return nil
	})
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	return paginate(items, filter.ListFilter), nil
}
