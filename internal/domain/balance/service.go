package balance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain"
	"stockledger/pkg/logger"
)

const openingStockEntity = "opening_stock"

// Options tune balance policy.
type Options struct {
	// ForbidNegative rejects deltas that would take closing balance below zero.
	ForbidNegative bool
}

// Service is the only write path to balance rows.
//
// Lock order within a unit:
//  1. the document row (journal, opening stock) being changed
//  2. ledger entry rows
//  3. balance rows, in SortKeys order, all taken before step 4
//  4. sequence rows
//
// A unit that needs several balance rows takes them with one Lock call, and
// no balance row is locked after a sequence row. Units that follow this order
// never wait on each other in a cycle.
type Service struct {
	repo Repository
	txm  tx.Manager
	opts Options
}

// NewService creates a new balance service.
func NewService(repo Repository, txm tx.Manager, opts Options) *Service {
	return &Service{
		repo: repo,
		txm:  txm,
		opts: opts,
	}
}

// GetOrCreate returns the locked balance row for key, creating it with zero
// balances when absent.
func (s *Service) GetOrCreate(ctx context.Context, key Key) (*Balance, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var b *Balance
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.LockOrCreate(ctx, key)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ApplyDelta adds delta to the balance of key and returns the new state.
// Joins the caller's atomic unit when there is one.
func (s *Service) ApplyDelta(ctx context.Context, key Key, delta Delta) (*Balance, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var b *Balance
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.LockOrCreate(ctx, key)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", key, err)
		}

		if delta.IsZero() {
			return nil
		}

		closing := b.ClosingBalance
		if err := b.apply(delta); err != nil {
			return err
		}
		if s.opts.ForbidNegative && delta.Quantity < 0 && b.ClosingBalance < 0 {
			return apperror.NewInsufficientStock(key.String(), closing.Int64(), delta.Quantity.Int64())
		}

		if err := s.repo.Save(ctx, b); err != nil {
			return fmt.Errorf("save balance %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "balance delta applied",
		"key", key.String(),
		"delta", delta.Quantity,
		"closing_balance", b.ClosingBalance,
	)
	return b, nil
}

// Lock acquires row locks for keys in canonical order, creating missing rows.
// Units that touch several keys call it first so that two units never wait on
// each other's rows in opposite order.
func (s *Service) Lock(ctx context.Context, keys ...Key) error {
	ordered, err := SortKeys(keys)
	if err != nil {
		return err
	}

	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, key := range ordered {
			if _, err := s.repo.LockOrCreate(ctx, key); err != nil {
				return fmt.Errorf("lock balance %s: %w", key, err)
			}
		}
		return nil
	})
}

// Get returns the balance of key. An absent key yields a zero balance that is
// not persisted, so reads never create rows.
func (s *Service) Get(ctx context.Context, key Key) (*Balance, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	b, err := s.repo.Get(ctx, key)
	if err != nil {
		if apperror.IsNotFound(err) {
			zero := &Balance{
				OrganizationID: key.OrganizationID,
				ItemID:         key.ItemID,
				WarehouseID:    key.WarehouseID,
				IsActive:       true,
			}
			return zero, nil
		}
		return nil, fmt.Errorf("get balance %s: %w", key, err)
	}
	return b, nil
}

// List returns the stock report of an organization.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[Balance], error) {
	if filter.OrganizationID == "" {
		return domain.ListResult[Balance]{}, apperror.NewFieldValidation("organization_id", "is required")
	}
	filter.ListFilter = filter.ListFilter.Normalize()
	return s.repo.List(ctx, filter)
}

// SummaryByItem returns balances aggregated per item.
func (s *Service) SummaryByItem(ctx context.Context, organizationID string) ([]ItemSummary, error) {
	if organizationID == "" {
		return nil, apperror.NewFieldValidation("organization_id", "is required")
	}
	return s.repo.SummaryByItem(ctx, organizationID)
}

// RecordOpeningStock stores an opening stock record and raises both opening
// and closing balance of its key by the same quantity.
func (s *Service) RecordOpeningStock(ctx context.Context, o *OpeningStock) (*Balance, error) {
	if err := o.Validate(ctx); err != nil {
		return nil, err
	}
	o.BaseEntity = entity.NewBaseEntity()
	o.CreatedBy = appctx.GetUserID(ctx)
	o.IsActive = true

	var b *Balance
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.LockOrCreate(ctx, o.Key())
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", o.Key(), err)
		}

		if err := s.shiftOpening(ctx, b, o.Quantity); err != nil {
			return err
		}

		if err := s.repo.CreateOpeningStock(ctx, o); err != nil {
			return fmt.Errorf("create opening stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "opening stock recorded",
		"id", o.ID,
		"key", o.Key().String(),
		"quantity", o.Quantity,
	)
	return b, nil
}

// OpeningStockChange carries the editable fields of an opening stock record.
// Version must match the stored record unless zero.
type OpeningStockChange struct {
	Version  int
	Quantity types.Quantity
	Rate     types.Money
	Amount   types.Money
}

// GetOpeningStock returns one opening stock record.
func (s *Service) GetOpeningStock(ctx context.Context, organizationID string, openingID id.ID) (*OpeningStock, error) {
	if organizationID == "" {
		return nil, apperror.NewFieldValidation("organization_id", "is required")
	}
	return s.repo.GetOpeningStock(ctx, organizationID, openingID)
}

// ListOpeningStock returns the opening stock records of an organization.
func (s *Service) ListOpeningStock(ctx context.Context, filter OpeningStockFilter) (domain.ListResult[OpeningStock], error) {
	if filter.OrganizationID == "" {
		return domain.ListResult[OpeningStock]{}, apperror.NewFieldValidation("organization_id", "is required")
	}
	filter.ListFilter = filter.ListFilter.Normalize()
	return s.repo.ListOpeningStock(ctx, filter)
}

// UpdateOpeningStock replaces quantity, rate and amount of a record. Opening
// and closing balance of its key move by the difference to the previous
// quantity in the same unit. The key of a record never changes.
func (s *Service) UpdateOpeningStock(ctx context.Context, organizationID string, openingID id.ID, change OpeningStockChange) (*OpeningStock, *Balance, error) {
	var (
		o *OpeningStock
		b *Balance
	)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		stored, err := s.repo.GetOpeningStockForUpdate(ctx, organizationID, openingID)
		if err != nil {
			return err
		}
		if change.Version != 0 && change.Version != stored.Version {
			return apperror.NewConcurrentModification(openingStockEntity, openingID)
		}

		next := *stored
		next.Quantity = change.Quantity
		next.Rate = change.Rate
		next.Amount = change.Amount
		if err := next.Validate(ctx); err != nil {
			return err
		}

		b, err = s.repo.LockOrCreate(ctx, next.Key())
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", next.Key(), err)
		}
		if err := s.shiftOpening(ctx, b, next.Quantity-stored.Quantity); err != nil {
			return err
		}

		next.UpdatedAt = time.Now().UTC()
		if err := s.repo.UpdateOpeningStock(ctx, &next); err != nil {
			return fmt.Errorf("update opening stock: %w", err)
		}
		o = &next
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info(ctx, "opening stock updated",
		"id", o.ID,
		"key", o.Key().String(),
		"quantity", o.Quantity,
	)
	return o, b, nil
}

// DeleteOpeningStock removes a record and takes its quantity back out of
// opening and closing balance in the same unit.
func (s *Service) DeleteOpeningStock(ctx context.Context, organizationID string, openingID id.ID) (*Balance, error) {
	var b *Balance
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		stored, err := s.repo.GetOpeningStockForUpdate(ctx, organizationID, openingID)
		if err != nil {
			return err
		}

		b, err = s.repo.LockOrCreate(ctx, stored.Key())
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", stored.Key(), err)
		}
		if err := s.shiftOpening(ctx, b, -stored.Quantity); err != nil {
			return err
		}

		if err := s.repo.DeleteOpeningStock(ctx, organizationID, openingID); err != nil {
			return fmt.Errorf("delete opening stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "opening stock deleted", "id", openingID)
	return b, nil
}

// shiftOpening moves opening and closing balance of a locked row by qty and
// saves it.
func (s *Service) shiftOpening(ctx context.Context, b *Balance, qty types.Quantity) error {
	if qty == 0 {
		return nil
	}
	opening, err := b.OpeningBalance.Add(qty)
	if err != nil {
		return overflow("opening_balance", b.Key(), err)
	}
	closing := b.ClosingBalance
	if err := b.apply(Delta{Quantity: qty}); err != nil {
		return err
	}
	if s.opts.ForbidNegative && qty < 0 && b.ClosingBalance < 0 {
		return apperror.NewInsufficientStock(b.Key().String(), closing.Int64(), qty.Int64())
	}
	b.OpeningBalance = opening
	if err := s.repo.Save(ctx, b); err != nil {
		return fmt.Errorf("save balance %s: %w", b.Key(), err)
	}
	return nil
}

// SortKeys validates keys and returns them deduplicated in canonical lock order.
func SortKeys(keys []Key) ([]Key, error) {
	seen := make(map[string]struct{}, len(keys))
	ordered := make([]Key, 0, len(keys))
	for _, key := range keys {
		if err := key.Validate(); err != nil {
			return nil, err
		}
		k := key.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ordered = append(ordered, key)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].String() < ordered[j].String()
	})
	return ordered, nil
}
