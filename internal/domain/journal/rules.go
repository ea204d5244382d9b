package journal

import (
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/ledger"
)

// postingRule is the fan-out of one transaction type. Every TransactionType
// has exactly one rule; a type without a rule cannot be submitted.
type postingRule interface {
	// validateHeader checks the warehouses the rule posts to.
	validateHeader(d *Document) error

	// lineDirection resolves the sign of the postings of a line. A
	// non-nil error is a *lineError.
	lineDirection(l *Line) (ledger.Direction, error)

	// postings returns the ledger movements of one line, in posting order.
	postings(d *Document, l *Line) []ledger.PostInput
}

var rules = map[TransactionType]postingRule{
	TypeTransfer:   transferRule{},
	TypeAdjustment: adjustmentRule{},
	TypeJournal:    journalRule{},
}

func ruleFor(t TransactionType) (postingRule, error) {
	rule, ok := rules[t]
	if !ok {
		return nil, apperror.NewFieldValidation("transaction_type", "is unknown").
			WithDetail("transaction_type", int(t))
	}
	return rule, nil
}

type lineError struct {
	field  string
	reason string
}

func (e *lineError) Error() string {
	return e.field + " " + e.reason
}

// transferRule moves stock from the source to the destination warehouse:
// Outbound at source, then Inbound at destination.
type transferRule struct{}

func (transferRule) validateHeader(d *Document) error {
	if d.SourceWarehouseID == nil {
		return apperror.NewFieldValidation("source_warehouse_id", "is required for Transfer")
	}
	if d.DestinationWarehouseID == nil {
		return apperror.NewFieldValidation("destination_warehouse_id", "is required for Transfer")
	}
	if *d.SourceWarehouseID == *d.DestinationWarehouseID {
		return apperror.NewFieldValidation("destination_warehouse_id", "must differ from source_warehouse_id")
	}
	return nil
}

func (transferRule) lineDirection(*Line) (ledger.Direction, error) {
	// Both legs carry their own sign.
	return "", nil
}

func (transferRule) postings(d *Document, l *Line) []ledger.PostInput {
	source := warehouseLabel(d.SourceBranch, d.SourceWarehouseID)
	destination := warehouseLabel(d.DestinationBranch, d.DestinationWarehouseID)

	out := basePosting(d, l)
	out.WarehouseID = d.SourceWarehouseID
	out.Kind = ledger.KindOutbound
	out.Direction = ledger.DirectionOut
	out.Remarks = fmt.Sprintf("Transfer from %s to %s", source, destination)

	in := basePosting(d, l)
	in.WarehouseID = d.DestinationWarehouseID
	in.Kind = ledger.KindInbound
	in.Direction = ledger.DirectionIn
	in.Remarks = fmt.Sprintf("Transfer to %s from %s", destination, source)

	return []ledger.PostInput{out, in}
}

// adjustmentRule posts one Adjustment entry per line at the adjustment warehouse.
type adjustmentRule struct{}

func (adjustmentRule) validateHeader(d *Document) error {
	if d.AdjustmentWarehouseID == nil {
		return apperror.NewFieldValidation("adjustment_warehouse_id", "is required for Adjustment")
	}
	return nil
}

func (adjustmentRule) lineDirection(l *Line) (ledger.Direction, error) {
	return lineKindDirection(l)
}

func (r adjustmentRule) postings(d *Document, l *Line) []ledger.PostInput {
	direction, _ := r.lineDirection(l)

	p := basePosting(d, l)
	p.WarehouseID = d.AdjustmentWarehouseID
	p.Kind = ledger.KindAdjustment
	p.Direction = direction
	p.Remarks = "Adjustment for " + warehouseLabel(d.AdjustmentBranch, d.AdjustmentWarehouseID)
	return []ledger.PostInput{p}
}

// journalRule posts one Journal entry per line at the source warehouse.
type journalRule struct{}

func (journalRule) validateHeader(d *Document) error {
	if d.SourceWarehouseID == nil {
		return apperror.NewFieldValidation("source_warehouse_id", "is required for Journal")
	}
	return nil
}

func (journalRule) lineDirection(l *Line) (ledger.Direction, error) {
	return lineKindDirection(l)
}

func (r journalRule) postings(d *Document, l *Line) []ledger.PostInput {
	direction, _ := r.lineDirection(l)

	p := basePosting(d, l)
	p.WarehouseID = d.SourceWarehouseID
	p.Kind = ledger.KindJournal
	p.Direction = direction
	p.Remarks = "Journal entry in " + warehouseLabel(d.SourceBranch, d.SourceWarehouseID)
	return []ledger.PostInput{p}
}

// lineKindDirection maps a line to the sign of its posting: destination lines
// add stock, source lines remove it, adjustment lines move stock from the
// current to the new snapshot.
func lineKindDirection(l *Line) (ledger.Direction, error) {
	switch l.Kind {
	case LineDestination:
		return ledger.DirectionIn, nil
	case LineSource:
		return ledger.DirectionOut, nil
	case LineAdjustment:
		if l.CurrentQuantity == nil || l.NewQuantity == nil {
			return "", &lineError{field: "new_quantity", reason: "and current_quantity are required for adjustment lines"}
		}
		switch {
		case *l.NewQuantity > *l.CurrentQuantity:
			return ledger.DirectionIn, nil
		case *l.NewQuantity < *l.CurrentQuantity:
			return ledger.DirectionOut, nil
		}
		return "", &lineError{field: "new_quantity", reason: "must differ from current_quantity"}
	}
	return "", &lineError{field: "line_kind", reason: "is unknown"}
}

func basePosting(d *Document, l *Line) ledger.PostInput {
	journalID := d.ID
	return ledger.PostInput{
		OrganizationID:        d.OrganizationID,
		ItemID:                l.ItemID,
		UnitID:                l.UnitID,
		Quantity:              l.Quantity,
		OccurredAt:            d.Date,
		ReferenceDocumentType: ReferenceDocumentType,
		ReferenceDocument:     d.Reference(),
		JournalID:             &journalID,
	}
}
