package dto

import (
	"encoding/json"
	"strconv"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/journal"
)

// --- Request DTOs ---

// JournalRequest represents a request to submit or replace a stock journal.
type JournalRequest struct {
	VoucherNumber   string                   `json:"voucherNumber,omitempty"`
	TransactionType *journal.TransactionType `json:"transactionType" binding:"required"`

	SourceWarehouseID      *string `json:"sourceWarehouseId,omitempty"`
	DestinationWarehouseID *string `json:"destinationWarehouseId,omitempty"`
	AdjustmentWarehouseID  *string `json:"adjustmentWarehouseId,omitempty"`

	SourceBranch      string `json:"sourceBranch,omitempty"`
	DestinationBranch string `json:"destinationBranch,omitempty"`
	AdjustmentBranch  string `json:"adjustmentBranch,omitempty"`

	Date  *time.Time           `json:"date,omitempty"`
	Note  string               `json:"note,omitempty"`
	Lines []JournalLineRequest `json:"lines" binding:"required,min=1,dive"`

	// Version is honored on update only.
	Version int `json:"version,omitempty" binding:"omitempty,min=1"`
}

// JournalLineRequest represents a line in submit/update request.
type JournalLineRequest struct {
	ItemID          string           `json:"itemId" binding:"required"`
	UnitID          *string          `json:"unitId,omitempty"`
	Quantity        types.Quantity   `json:"quantity"`
	Rate            types.Money      `json:"rate"`
	TotalAmount     types.Money      `json:"totalAmount"`
	LineKind        journal.LineKind `json:"lineKind"`
	CurrentQuantity *types.Quantity  `json:"currentQuantity,omitempty"`
	NewQuantity     *types.Quantity  `json:"newQuantity,omitempty"`
}

// ToDocument converts request to a journal of organizationID.
func (r *JournalRequest) ToDocument(organizationID string) (*journal.Document, error) {
	var errs fieldErrors
	d := &journal.Document{
		OrganizationID:         organizationID,
		VoucherNumber:          r.VoucherNumber,
		TransactionType:        *r.TransactionType,
		SourceWarehouseID:      errs.optionalID("sourceWarehouseId", r.SourceWarehouseID),
		DestinationWarehouseID: errs.optionalID("destinationWarehouseId", r.DestinationWarehouseID),
		AdjustmentWarehouseID:  errs.optionalID("adjustmentWarehouseId", r.AdjustmentWarehouseID),
		SourceBranch:           r.SourceBranch,
		DestinationBranch:      r.DestinationBranch,
		AdjustmentBranch:       r.AdjustmentBranch,
		Note:                   r.Note,
		Lines:                  make([]journal.Line, 0, len(r.Lines)),
	}
	if r.Date != nil {
		d.Date = r.Date.UTC()
	}

	for i, l := range r.Lines {
		prefix := "lines[" + strconv.Itoa(i) + "]."
		d.Lines = append(d.Lines, journal.Line{
			ItemID:          errs.id(prefix+"itemId", l.ItemID),
			UnitID:          errs.optionalID(prefix+"unitId", l.UnitID),
			Quantity:        l.Quantity,
			Rate:            l.Rate,
			TotalAmount:     l.TotalAmount,
			Kind:            l.LineKind,
			CurrentQuantity: l.CurrentQuantity,
			NewQuantity:     l.NewQuantity,
		})
	}

	if err := errs.result(); err != nil {
		return nil, err
	}
	return d, nil
}

// ToUpdate converts request to a replacement of journalID.
func (r *JournalRequest) ToUpdate(organizationID string, journalID id.ID) (*journal.Document, error) {
	d, err := r.ToDocument(organizationID)
	if err != nil {
		return nil, err
	}
	d.ID = journalID
	d.Version = r.Version
	return d, nil
}

// ListJournalsRequest holds journal list query parameters.
type ListJournalsRequest struct {
	ListRequest

	TransactionType *journal.TransactionType `form:"transactionType"`
	VoucherNumber   string                   `form:"voucherNumber"`
	DateFrom        *time.Time               `form:"dateFrom" time_format:"2006-01-02"`
	DateTo          *time.Time               `form:"dateTo" time_format:"2006-01-02"`
}

// ToFilter converts query parameters to a journal filter.
func (r *ListJournalsRequest) ToFilter(organizationID string) journal.ListFilter {
	return journal.ListFilter{
		ListFilter:      r.ListRequest.ToFilter(),
		OrganizationID:  organizationID,
		TransactionType: r.TransactionType,
		VoucherNumber:   r.VoucherNumber,
		DateFrom:        r.DateFrom,
		DateTo:          r.DateTo,
	}
}

// --- Response DTOs ---

// JournalResponse represents a stock journal in API responses.
type JournalResponse struct {
	BaseResponse
	Number                 int64                 `json:"number"`
	VoucherNumber          string                `json:"voucherNumber"`
	TransactionType        int                   `json:"transactionType"`
	TransactionTypeName    string                `json:"transactionTypeName"`
	SourceWarehouseID      *string               `json:"sourceWarehouseId,omitempty"`
	DestinationWarehouseID *string               `json:"destinationWarehouseId,omitempty"`
	AdjustmentWarehouseID  *string               `json:"adjustmentWarehouseId,omitempty"`
	SourceBranch           string                `json:"sourceBranch,omitempty"`
	DestinationBranch      string                `json:"destinationBranch,omitempty"`
	AdjustmentBranch       string                `json:"adjustmentBranch,omitempty"`
	Date                   time.Time             `json:"date"`
	Note                   string                `json:"note,omitempty"`
	Lines                  []JournalLineResponse `json:"lines,omitempty"`
	EntryIDs               []string              `json:"entryIds,omitempty"`
}

// JournalLineResponse represents a journal line in API responses.
type JournalLineResponse struct {
	ID              string          `json:"id"`
	LineNo          int             `json:"lineNo"`
	Number          int64           `json:"number"`
	ItemID          string          `json:"itemId"`
	UnitID          *string         `json:"unitId,omitempty"`
	Quantity        types.Quantity  `json:"quantity"`
	Rate            types.Money     `json:"rate"`
	TotalAmount     types.Money     `json:"totalAmount"`
	LineKind        int             `json:"lineKind"`
	CurrentQuantity *types.Quantity `json:"currentQuantity,omitempty"`
	NewQuantity     *types.Quantity `json:"newQuantity,omitempty"`
}

// FromJournal converts entity to response DTO.
func FromJournal(d *journal.Document) JournalResponse {
	resp := JournalResponse{
		BaseResponse:           FromBase(d.BaseEntity),
		Number:                 d.Number,
		VoucherNumber:          d.VoucherNumber,
		TransactionType:        int(d.TransactionType),
		TransactionTypeName:    d.TransactionType.String(),
		SourceWarehouseID:      optionalString(d.SourceWarehouseID),
		DestinationWarehouseID: optionalString(d.DestinationWarehouseID),
		AdjustmentWarehouseID:  optionalString(d.AdjustmentWarehouseID),
		SourceBranch:           d.SourceBranch,
		DestinationBranch:      d.DestinationBranch,
		AdjustmentBranch:       d.AdjustmentBranch,
		Date:                   d.Date,
		Note:                   d.Note,
	}
	for _, l := range d.Lines {
		resp.Lines = append(resp.Lines, JournalLineResponse{
			ID:              l.ID.String(),
			LineNo:          l.LineNo,
			Number:          l.Number,
			ItemID:          l.ItemID.String(),
			UnitID:          optionalString(l.UnitID),
			Quantity:        l.Quantity,
			Rate:            l.Rate,
			TotalAmount:     l.TotalAmount,
			LineKind:        int(l.Kind),
			CurrentQuantity: l.CurrentQuantity,
			NewQuantity:     l.NewQuantity,
		})
	}
	return resp
}

// FromSubmitResult adds the ids of the posted entries.
func FromSubmitResult(r *journal.SubmitResult) JournalResponse {
	resp := FromJournal(r.Document)
	resp.EntryIDs = make([]string, 0, len(r.EntryIDs))
	for _, e := range r.EntryIDs {
		resp.EntryIDs = append(resp.EntryIDs, e.String())
	}
	return resp
}

// HistoryRequest limits the audit records returned.
type HistoryRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// AuditRecordResponse is one change of a journal.
type AuditRecordResponse struct {
	ID        string          `json:"id"`
	Action    audit.Action    `json:"action"`
	UserID    string          `json:"userId,omitempty"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FromAuditRecords converts audit records, keeping their order.
func FromAuditRecords(records []audit.Record) []AuditRecordResponse {
	resp := make([]AuditRecordResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, AuditRecordResponse{
			ID:        r.ID.String(),
			Action:    r.Action,
			UserID:    r.UserID,
			Changes:   r.Changes,
			CreatedAt: r.CreatedAt,
		})
	}
	return resp
}
