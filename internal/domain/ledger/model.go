// Package ledger records stock movements and keeps balances in step with them.
//
// Every entry has a defined sign. Inbound adds, Outbound subtracts; Transfer,
// Adjustment and Journal entries carry no inherent sign and must state their
// direction explicitly. An entry without a resolvable sign is rejected before
// anything is written.
package ledger

import (
	"context"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
)

// EntityType is the sequence scope of ledger entry numbers.
const EntityType = "inventory_transaction"

// MovementKind classifies the effect of an entry.
type MovementKind string

const (
	KindInbound    MovementKind = "Inbound"
	KindOutbound   MovementKind = "Outbound"
	KindTransfer   MovementKind = "Transfer"
	KindAdjustment MovementKind = "Adjustment"
	KindJournal    MovementKind = "Journal"
)

// IsValid reports whether k is a known kind.
func (k MovementKind) IsValid() bool {
	switch k {
	case KindInbound, KindOutbound, KindTransfer, KindAdjustment, KindJournal:
		return true
	}
	return false
}

// inherentDirection returns the direction implied by the kind, or "" when the
// kind needs an explicit one.
func (k MovementKind) inherentDirection() Direction {
	switch k {
	case KindInbound:
		return DirectionIn
	case KindOutbound:
		return DirectionOut
	}
	return ""
}

// Direction is the sign of an entry's effect on its balance.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// IsValid reports whether d is a known direction.
func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut
}

// ValuationMethod is stored with the entry; no costing is computed from it.
type ValuationMethod string

const (
	ValuationFIFO    ValuationMethod = "FIFO"
	ValuationLIFO    ValuationMethod = "LIFO"
	ValuationAverage ValuationMethod = "AVERAGE"
)

// ParseValuationMethod accepts the method name or its legacy code
// ("10" FIFO, "20" LIFO, "30" AVERAGE). Blank means FIFO.
func ParseValuationMethod(s string) (ValuationMethod, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "FIFO", "10":
		return ValuationFIFO, true
	case "LIFO", "20":
		return ValuationLIFO, true
	case "AVERAGE", "30":
		return ValuationAverage, true
	}
	return "", false
}

// Entry is one committed stock movement.
type Entry struct {
	entity.BaseEntity

	// Number is the human-facing sequence value
	Number int64 `db:"number" json:"number"`

	OrganizationID string          `db:"organization_id" json:"organizationId"`
	ItemID         id.ID           `db:"item_id" json:"itemId"`
	UnitID         *id.ID          `db:"unit_id" json:"unitId,omitempty"`
	WarehouseID    *id.ID          `db:"warehouse_id" json:"warehouseId,omitempty"`
	Quantity       types.Quantity  `db:"quantity" json:"quantity"`
	Kind           MovementKind    `db:"movement_kind" json:"movementKind"`
	Direction      Direction       `db:"direction" json:"direction"`
	Valuation      ValuationMethod `db:"valuation_method" json:"valuationMethod"`

	// OccurredAt is set once at creation and never changes
	OccurredAt time.Time `db:"occurred_at" json:"occurredAt"`

	ReferenceDocumentType string `db:"reference_document_type" json:"referenceDocumentType,omitempty"`
	ReferenceDocument     string `db:"reference_document" json:"referenceDocument,omitempty"`
	Remarks               string `db:"remarks" json:"remarks,omitempty"`

	// JournalID is set on entries produced by a stock journal; such entries
	// change only through the journal.
	JournalID *id.ID `db:"journal_id" json:"journalId,omitempty"`
}

// Key returns the balance key the entry posts to.
func (e *Entry) Key() balance.Key {
	return balance.Key{
		OrganizationID: e.OrganizationID,
		ItemID:         e.ItemID,
		WarehouseID:    e.WarehouseID,
	}
}

// Validate implements entity.Validatable. It resolves the direction of kinds
// with an inherent sign and defaults the valuation method, and reports every
// invalid field at once.
func (e *Entry) Validate(ctx context.Context) error {
	var verr *apperror.AppError
	fail := func(field, reason string) {
		if verr == nil {
			verr = apperror.NewValidation("invalid ledger entry")
		}
		verr.WithField(field, reason)
	}

	if strings.TrimSpace(e.OrganizationID) == "" {
		fail("organization_id", "is required")
	}
	if id.IsNil(e.ItemID) {
		fail("item_id", "is required")
	}
	if !e.Quantity.IsPositive() {
		fail("quantity", "must be positive")
	}

	switch {
	case e.Kind == "":
		fail("movement_kind", "is required")
	case !e.Kind.IsValid():
		fail("movement_kind", "is unknown")
	default:
		inherent := e.Kind.inherentDirection()
		switch {
		case e.Direction != "" && !e.Direction.IsValid():
			fail("direction", "is unknown")
		case inherent != "" && e.Direction != "" && e.Direction != inherent:
			fail("direction", "contradicts movement_kind")
		case inherent == "" && e.Direction == "":
			fail("direction", "is required for "+string(e.Kind)+" entries")
		case e.Direction == "":
			e.Direction = inherent
		}
	}

	valuation, ok := ParseValuationMethod(string(e.Valuation))
	if !ok {
		fail("valuation_method", "is unknown")
	} else {
		e.Valuation = valuation
	}

	if verr != nil {
		return verr
	}
	return nil
}

// Effect returns the balance delta of a validated entry.
func (e *Entry) Effect() balance.Delta {
	if e.Direction == DirectionOut {
		return balance.Delta{Quantity: -e.Quantity}
	}
	return balance.Delta{Quantity: e.Quantity, Received: e.Quantity}
}
