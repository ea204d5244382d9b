// Package journal provides stock journals: multi-line documents that fan out
// into ledger entries (transfers between warehouses, adjustments, journal
// postings).
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Sequence scopes of journal numbers.
const (
	EntityType     = "stock_journal"
	LineEntityType = "stock_journal_line"
)

// VoucherPrefix prefixes generated voucher numbers.
const VoucherPrefix = "SJ"

// ReferenceDocumentType is stamped on every entry a journal posts.
const ReferenceDocumentType = "StockJournal"

// TransactionType selects the fan-out rule of a journal.
type TransactionType int

const (
	TypeTransfer   TransactionType = 0
	TypeAdjustment TransactionType = 1
	TypeJournal    TransactionType = 2
)

func (t TransactionType) String() string {
	switch t {
	case TypeTransfer:
		return "Transfer"
	case TypeAdjustment:
		return "Adjustment"
	case TypeJournal:
		return "Journal"
	}
	return fmt.Sprintf("TransactionType(%d)", int(t))
}

// LineKind is the role of a line within its journal.
type LineKind int

const (
	LineDestination LineKind = 0
	LineSource      LineKind = 1
	LineAdjustment  LineKind = 2
)

// IsValid reports whether k is a known line kind.
func (k LineKind) IsValid() bool {
	return k == LineDestination || k == LineSource || k == LineAdjustment
}

// Document is a stock journal header. It owns its lines: they are created,
// replaced and deleted only together with the document.
type Document struct {
	entity.BaseEntity

	Number        int64  `db:"number" json:"number"`
	VoucherNumber string `db:"voucher_number" json:"voucherNumber"`

	OrganizationID  string          `db:"organization_id" json:"organizationId"`
	TransactionType TransactionType `db:"transaction_type" json:"transactionType"`

	SourceWarehouseID      *id.ID `db:"source_warehouse_id" json:"sourceWarehouseId,omitempty"`
	DestinationWarehouseID *id.ID `db:"destination_warehouse_id" json:"destinationWarehouseId,omitempty"`
	AdjustmentWarehouseID  *id.ID `db:"adjustment_warehouse_id" json:"adjustmentWarehouseId,omitempty"`

	SourceBranch      string `db:"source_branch" json:"sourceBranch,omitempty"`
	DestinationBranch string `db:"destination_branch" json:"destinationBranch,omitempty"`
	AdjustmentBranch  string `db:"adjustment_branch" json:"adjustmentBranch,omitempty"`

	Date time.Time `db:"date" json:"date"`
	Note string    `db:"note" json:"note,omitempty"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one item row of a journal.
type Line struct {
	ID        id.ID `db:"id" json:"id"`
	JournalID id.ID `db:"journal_id" json:"journalId"`
	LineNo    int   `db:"line_no" json:"lineNo"`
	Number    int64 `db:"number" json:"number"`

	ItemID      id.ID          `db:"item_id" json:"itemId"`
	UnitID      *id.ID         `db:"unit_id" json:"unitId,omitempty"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	Rate        types.Money    `db:"rate" json:"rate"`
	TotalAmount types.Money    `db:"total_amount" json:"totalAmount"`
	Kind        LineKind       `db:"line_kind" json:"lineKind"`

	// Stock snapshots of adjustment lines
	CurrentQuantity *types.Quantity `db:"current_quantity" json:"currentQuantity,omitempty"`
	NewQuantity     *types.Quantity `db:"new_quantity" json:"newQuantity,omitempty"`
}

// Reference returns the reference_document value stamped on postings.
func (d *Document) Reference() string {
	voucher := d.VoucherNumber
	if voucher == "" {
		voucher = "Unnumbered"
	}
	return "Journal " + voucher
}

// Validate implements entity.Validatable. It checks the header, the rule of
// the transaction type and every line, computing missing line totals.
func (d *Document) Validate(ctx context.Context) error {
	if strings.TrimSpace(d.OrganizationID) == "" {
		return apperror.NewFieldValidation("organization_id", "is required")
	}

	rule, err := ruleFor(d.TransactionType)
	if err != nil {
		return err
	}
	if err := rule.validateHeader(d); err != nil {
		return err
	}

	if len(d.Lines) == 0 {
		return apperror.NewValidation("journal must have at least one line").
			WithField("lines", "is required")
	}

	var verr *apperror.AppError
	for i := range d.Lines {
		line := &d.Lines[i]
		failures := line.validate()
		if len(failures) == 0 {
			if _, err := rule.lineDirection(line); err != nil {
				var lerr *lineError
				if !errors.As(err, &lerr) {
					return err
				}
				failures[lerr.field] = lerr.reason
			}
		}
		for field, reason := range failures {
			if verr == nil {
				verr = apperror.NewValidation("invalid journal line")
			}
			verr.WithField(fmt.Sprintf("lines[%d].%s", i, field), reason)
		}
	}
	if verr != nil {
		return verr
	}
	return nil
}

// validate returns field failures of the line and fills TotalAmount when omitted.
func (l *Line) validate() map[string]string {
	failures := make(map[string]string)
	if id.IsNil(l.ItemID) {
		failures["item_id"] = "is required"
	}
	if !l.Quantity.IsPositive() {
		failures["quantity"] = "must be positive"
	}
	if !l.Kind.IsValid() {
		failures["line_kind"] = "is unknown"
	}
	if l.Rate.IsNegative() {
		failures["rate"] = "must not be negative"
	}
	if len(failures) > 0 {
		return failures
	}

	expected := types.Amount(l.Rate, l.Quantity)
	if l.TotalAmount.IsZero() {
		l.TotalAmount = expected
	} else if !l.TotalAmount.Equal(expected) {
		failures["total_amount"] = "must equal rate × quantity"
	}
	return failures
}

// prepare assigns line identity and order before persisting.
func (d *Document) prepare() {
	for i := range d.Lines {
		if id.IsNil(d.Lines[i].ID) {
			d.Lines[i].ID = id.New()
		}
		d.Lines[i].JournalID = d.ID
		d.Lines[i].LineNo = i + 1
	}
}

// warehouseLabel renders a warehouse for posting remarks, preferring the branch label.
func warehouseLabel(branch string, warehouseID *id.ID) string {
	if strings.TrimSpace(branch) != "" {
		return branch
	}
	return id.String(warehouseID)
}
