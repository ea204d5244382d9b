package dto

import (
	"strconv"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
)

// --- Request DTOs ---

// PostMovementRequest represents a request to record one stock movement.
type PostMovementRequest struct {
	ItemID                string         `json:"itemId" binding:"required"`
	UnitID                *string        `json:"unitId,omitempty"`
	WarehouseID           *string        `json:"warehouseId,omitempty"`
	Quantity              types.Quantity `json:"quantity"`
	MovementKind          string         `json:"movementKind" binding:"required"`
	Direction             string         `json:"direction,omitempty"`
	ValuationMethod       string         `json:"valuationMethod,omitempty"`
	OccurredAt            *time.Time     `json:"occurredAt,omitempty"`
	ReferenceDocumentType string         `json:"referenceDocumentType,omitempty"`
	ReferenceDocument     string         `json:"referenceDocument,omitempty"`
	Remarks               string         `json:"remarks,omitempty"`
}

// ToInput converts the request to a posting of organizationID.
func (r *PostMovementRequest) ToInput(organizationID string) (ledger.PostInput, error) {
	var errs fieldErrors
	return r.toInput(organizationID, "", &errs), errs.result()
}

func (r *PostMovementRequest) toInput(organizationID, prefix string, errs *fieldErrors) ledger.PostInput {
	in := ledger.PostInput{
		OrganizationID:        organizationID,
		ItemID:                errs.id(prefix+"itemId", r.ItemID),
		UnitID:                errs.optionalID(prefix+"unitId", r.UnitID),
		WarehouseID:           errs.optionalID(prefix+"warehouseId", r.WarehouseID),
		Quantity:              r.Quantity,
		Kind:                  ledger.MovementKind(r.MovementKind),
		Direction:             ledger.Direction(r.Direction),
		ReferenceDocumentType: r.ReferenceDocumentType,
		ReferenceDocument:     r.ReferenceDocument,
		Remarks:               r.Remarks,
	}
	if r.OccurredAt != nil {
		in.OccurredAt = *r.OccurredAt
	}

	valuation, ok := ledger.ParseValuationMethod(r.ValuationMethod)
	if !ok {
		errs.add(prefix+"valuationMethod", "is unknown")
	}
	in.Valuation = valuation
	return in
}

// UpdateMovementRequest replaces the values of an existing movement.
type UpdateMovementRequest struct {
	PostMovementRequest

	// Version, when set, must match the stored version.
	Version int `json:"version,omitempty" binding:"omitempty,min=1"`
}

// ToInput converts the request to an update of entryID.
func (r *UpdateMovementRequest) ToInput(organizationID string, entryID id.ID) (ledger.UpdateInput, error) {
	in, err := r.PostMovementRequest.ToInput(organizationID)
	if err != nil {
		return ledger.UpdateInput{}, err
	}
	return ledger.UpdateInput{PostInput: in, EntryID: entryID, Version: r.Version}, nil
}

// BulkPostRequest represents an all-or-nothing batch of movements.
type BulkPostRequest struct {
	Entries []PostMovementRequest `json:"entries" binding:"required,min=1,max=1000,dive"`
}

// ToInputs converts every entry; field names carry the entry index.
func (r *BulkPostRequest) ToInputs(organizationID string) ([]ledger.PostInput, error) {
	var errs fieldErrors
	inputs := make([]ledger.PostInput, len(r.Entries))
	for i := range r.Entries {
		inputs[i] = r.Entries[i].toInput(organizationID, "entries["+strconv.Itoa(i)+"].", &errs)
	}
	return inputs, errs.result()
}

// ListEntriesRequest holds ledger list query parameters.
type ListEntriesRequest struct {
	ListRequest

	ItemID            string `form:"itemId"`
	WarehouseID       string `form:"warehouseId"`
	JournalID         string `form:"journalId"`
	MovementKind      string `form:"movementKind"`
	ReferenceDocument string `form:"referenceDocument"`
}

// ToFilter converts query parameters to a ledger filter.
func (r *ListEntriesRequest) ToFilter(organizationID string) (ledger.ListFilter, error) {
	var errs fieldErrors
	f := ledger.ListFilter{
		ListFilter:        r.ListRequest.ToFilter(),
		OrganizationID:    organizationID,
		ItemID:            errs.optionalID("itemId", &r.ItemID),
		WarehouseID:       errs.optionalID("warehouseId", &r.WarehouseID),
		JournalID:         errs.optionalID("journalId", &r.JournalID),
		Kind:              ledger.MovementKind(r.MovementKind),
		ReferenceDocument: r.ReferenceDocument,
	}
	if f.Kind != "" && !f.Kind.IsValid() {
		errs.add("movementKind", "is unknown")
	}
	return f, errs.result()
}

// --- Response DTOs ---

// EntryResponse represents a ledger entry in API responses.
type EntryResponse struct {
	BaseResponse
	Number                int64          `json:"number"`
	ItemID                string         `json:"itemId"`
	UnitID                *string        `json:"unitId,omitempty"`
	WarehouseID           *string        `json:"warehouseId,omitempty"`
	Quantity              types.Quantity `json:"quantity"`
	MovementKind          string         `json:"movementKind"`
	Direction             string         `json:"direction"`
	ValuationMethod       string         `json:"valuationMethod"`
	OccurredAt            time.Time      `json:"occurredAt"`
	ReferenceDocumentType string         `json:"referenceDocumentType,omitempty"`
	ReferenceDocument     string         `json:"referenceDocument,omitempty"`
	Remarks               string         `json:"remarks,omitempty"`
	JournalID             *string        `json:"journalId,omitempty"`
}

// FromEntry converts entity to response DTO.
func FromEntry(e *ledger.Entry) EntryResponse {
	return EntryResponse{
		BaseResponse:          FromBase(e.BaseEntity),
		Number:                e.Number,
		ItemID:                e.ItemID.String(),
		UnitID:                optionalString(e.UnitID),
		WarehouseID:           optionalString(e.WarehouseID),
		Quantity:              e.Quantity,
		MovementKind:          string(e.Kind),
		Direction:             string(e.Direction),
		ValuationMethod:       string(e.Valuation),
		OccurredAt:            e.OccurredAt,
		ReferenceDocumentType: e.ReferenceDocumentType,
		ReferenceDocument:     e.ReferenceDocument,
		Remarks:               e.Remarks,
		JournalID:             optionalString(e.JournalID),
	}
}

// FromEntries converts a slice of entries.
func FromEntries(entries []*ledger.Entry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, FromEntry(e))
	}
	return out
}

func optionalString(v *id.ID) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
