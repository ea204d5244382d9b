// Package balance provides the running stock balance per
// (organization, item, warehouse).
package balance

import (
	"context"
	"strings"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Key identifies one balance row. WarehouseID is optional: stock that is not
// placed in a warehouse is tracked under a nil warehouse.
type Key struct {
	OrganizationID string
	ItemID         id.ID
	WarehouseID    *id.ID
}

// Validate checks that the key can address a balance row.
func (k Key) Validate() error {
	var err *apperror.AppError
	if strings.TrimSpace(k.OrganizationID) == "" {
		err = apperror.NewFieldValidation("organization_id", "is required")
	}
	if id.IsNil(k.ItemID) {
		if err == nil {
			err = apperror.NewFieldValidation("item_id", "is required")
		} else {
			err.WithField("item_id", "is required")
		}
	}
	if err != nil {
		return err
	}
	return nil
}

// String renders the key in its canonical form, also used as lock order.
func (k Key) String() string {
	wh := "-"
	if k.WarehouseID != nil {
		wh = k.WarehouseID.String()
	}
	return k.OrganizationID + "/" + k.ItemID.String() + "/" + wh
}

// Delta is a signed change applied to a balance.
type Delta struct {
	// Quantity is added to closing_balance.
	Quantity types.Quantity
	// Received is added to received; it tracks inbound-direction postings only.
	Received types.Quantity
}

// Neg returns the delta that undoes d.
func (d Delta) Neg() Delta {
	return Delta{Quantity: -d.Quantity, Received: -d.Received}
}

// IsZero reports whether applying d changes nothing.
func (d Delta) IsZero() bool {
	return d.Quantity == 0 && d.Received == 0
}

// Balance is the materialized running total of one key.
// Invariant: ClosingBalance == OpeningBalance + sum of committed entry deltas.
type Balance struct {
	entity.BaseEntity

	OrganizationID string         `db:"organization_id" json:"organizationId"`
	ItemID         id.ID          `db:"item_id" json:"itemId"`
	WarehouseID    *id.ID         `db:"warehouse_id" json:"warehouseId,omitempty"`
	OpeningBalance types.Quantity `db:"opening_balance" json:"openingBalance"`
	ClosingBalance types.Quantity `db:"closing_balance" json:"closingBalance"`
	Received       types.Quantity `db:"received" json:"received"`
	IsActive       bool           `db:"is_active" json:"isActive"`
}

// NewBalance creates a zero balance for key.
func NewBalance(key Key) *Balance {
	return &Balance{
		BaseEntity:     entity.NewBaseEntity(),
		OrganizationID: key.OrganizationID,
		ItemID:         key.ItemID,
		WarehouseID:    key.WarehouseID,
		IsActive:       true,
	}
}

// Key returns the key of the balance row.
func (b *Balance) Key() Key {
	return Key{OrganizationID: b.OrganizationID, ItemID: b.ItemID, WarehouseID: b.WarehouseID}
}

// apply adds d to the running totals. Only Service calls it.
// On overflow b is left unchanged.
func (b *Balance) apply(d Delta) error {
	closing, err := b.ClosingBalance.Add(d.Quantity)
	if err != nil {
		return overflow("closing_balance", b.Key(), err)
	}
	received, err := b.Received.Add(d.Received)
	if err != nil {
		return overflow("received", b.Key(), err)
	}
	b.ClosingBalance, b.Received = closing, received
	b.Touch()
	return nil
}

func overflow(field string, key Key, err error) error {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		return err
	}
	return appErr.WithField(field, "out of range").WithDetail("balance_key", key.String())
}

// ItemSummary aggregates the balances of one item across warehouses.
type ItemSummary struct {
	ItemID         id.ID          `db:"item_id" json:"itemId"`
	OpeningBalance types.Quantity `db:"opening_balance" json:"openingBalance"`
	ClosingBalance types.Quantity `db:"closing_balance" json:"closingBalance"`
	Received       types.Quantity `db:"received" json:"received"`
	Warehouses     int            `db:"warehouses" json:"warehouses"`
}

// OpeningStock records stock that existed before the ledger started.
// Recording it adds Quantity to both opening and closing balance of the key.
type OpeningStock struct {
	entity.BaseEntity

	OrganizationID string         `db:"organization_id" json:"organizationId"`
	ItemID         id.ID          `db:"item_id" json:"itemId"`
	WarehouseID    *id.ID         `db:"warehouse_id" json:"warehouseId,omitempty"`
	Quantity       types.Quantity `db:"quantity" json:"quantity"`
	Rate           types.Money    `db:"rate" json:"rate"`
	Amount         types.Money    `db:"amount" json:"amount"`
	IsActive       bool           `db:"is_active" json:"isActive"`
}

// Key returns the balance key the opening stock belongs to.
func (o *OpeningStock) Key() Key {
	return Key{OrganizationID: o.OrganizationID, ItemID: o.ItemID, WarehouseID: o.WarehouseID}
}

// Validate implements entity.Validatable.
func (o *OpeningStock) Validate(ctx context.Context) error {
	if err := o.Key().Validate(); err != nil {
		return err
	}
	if !o.Quantity.IsPositive() {
		return apperror.NewFieldValidation("quantity", "must be positive")
	}
	if o.Rate.IsNegative() {
		return apperror.NewFieldValidation("rate", "must not be negative")
	}
	expected := types.Amount(o.Rate, o.Quantity)
	if o.Amount.IsZero() {
		o.Amount = expected
	} else if !o.Amount.Equal(expected) {
		return apperror.NewFieldValidation("amount", "must equal rate × quantity").
			WithDetail("expected", expected.String())
	}
	return nil
}
