package dto

import (
	"stockledger/internal/core/types"
	"stockledger/internal/domain/balance"
)

// --- Request DTOs ---

// BalanceRequest addresses one balance row.
type BalanceRequest struct {
	ItemID      string `form:"itemId" binding:"required"`
	WarehouseID string `form:"warehouseId"`
}

// ToKey converts query parameters to a balance key.
func (r *BalanceRequest) ToKey(organizationID string) (balance.Key, error) {
	var errs fieldErrors
	key := balance.Key{
		OrganizationID: organizationID,
		ItemID:         errs.id("itemId", r.ItemID),
		WarehouseID:    errs.optionalID("warehouseId", &r.WarehouseID),
	}
	return key, errs.result()
}

// StockReportRequest holds stock report query parameters.
type StockReportRequest struct {
	ListRequest

	ItemID      string `form:"itemId"`
	WarehouseID string `form:"warehouseId"`
	ExcludeZero bool   `form:"excludeZero"`
}

// ToFilter converts query parameters to a balance filter.
func (r *StockReportRequest) ToFilter(organizationID string) (balance.ListFilter, error) {
	var errs fieldErrors
	f := balance.ListFilter{
		ListFilter:     r.ListRequest.ToFilter(),
		OrganizationID: organizationID,
		ItemID:         errs.optionalID("itemId", &r.ItemID),
		WarehouseID:    errs.optionalID("warehouseId", &r.WarehouseID),
		ExcludeZero:    r.ExcludeZero,
	}
	return f, errs.result()
}

// OpeningStockRequest records stock that existed before the ledger started.
type OpeningStockRequest struct {
	ItemID      string         `json:"itemId" binding:"required"`
	WarehouseID *string        `json:"warehouseId,omitempty"`
	Quantity    types.Quantity `json:"quantity"`
	Rate        types.Money    `json:"rate"`
	Amount      types.Money    `json:"amount"`
}

// ToEntity converts request to domain entity.
func (r *OpeningStockRequest) ToEntity(organizationID string) (*balance.OpeningStock, error) {
	var errs fieldErrors
	o := &balance.OpeningStock{
		OrganizationID: organizationID,
		ItemID:         errs.id("itemId", r.ItemID),
		WarehouseID:    errs.optionalID("warehouseId", r.WarehouseID),
		Quantity:       r.Quantity,
		Rate:           r.Rate,
		Amount:         r.Amount,
		IsActive:       true,
	}
	if err := errs.result(); err != nil {
		return nil, err
	}
	return o, nil
}

// OpeningStockUpdateRequest replaces quantity, rate and amount of a record.
type OpeningStockUpdateRequest struct {
	Version  int            `json:"version"`
	Quantity types.Quantity `json:"quantity"`
	Rate     types.Money    `json:"rate"`
	Amount   types.Money    `json:"amount"`
}

// ToChange converts request to a service change.
func (r *OpeningStockUpdateRequest) ToChange() balance.OpeningStockChange {
	return balance.OpeningStockChange{
		Version:  r.Version,
		Quantity: r.Quantity,
		Rate:     r.Rate,
		Amount:   r.Amount,
	}
}

// ListOpeningStockRequest holds opening stock query parameters.
type ListOpeningStockRequest struct {
	ListRequest

	ItemID      string `form:"itemId"`
	WarehouseID string `form:"warehouseId"`
}

// ToFilter converts query parameters to an opening stock filter.
func (r *ListOpeningStockRequest) ToFilter(organizationID string) (balance.OpeningStockFilter, error) {
	var errs fieldErrors
	f := balance.OpeningStockFilter{
		ListFilter:     r.ListRequest.ToFilter(),
		OrganizationID: organizationID,
		ItemID:         errs.optionalID("itemId", &r.ItemID),
		WarehouseID:    errs.optionalID("warehouseId", &r.WarehouseID),
	}
	return f, errs.result()
}

// --- Response DTOs ---

// BalanceResponse represents a stock balance in API responses.
type BalanceResponse struct {
	ItemID         string         `json:"itemId"`
	WarehouseID    *string        `json:"warehouseId,omitempty"`
	OpeningBalance types.Quantity `json:"openingBalance"`
	ClosingBalance types.Quantity `json:"closingBalance"`
	Received       types.Quantity `json:"received"`
	Version        int            `json:"version"`
}

// FromBalance converts entity to response DTO.
func FromBalance(b balance.Balance) BalanceResponse {
	return BalanceResponse{
		ItemID:         b.ItemID.String(),
		WarehouseID:    optionalString(b.WarehouseID),
		OpeningBalance: b.OpeningBalance,
		ClosingBalance: b.ClosingBalance,
		Received:       b.Received,
		Version:        b.Version,
	}
}

// ItemSummaryResponse aggregates one item across warehouses.
type ItemSummaryResponse struct {
	ItemID         string         `json:"itemId"`
	OpeningBalance types.Quantity `json:"openingBalance"`
	ClosingBalance types.Quantity `json:"closingBalance"`
	Received       types.Quantity `json:"received"`
	Warehouses     int            `json:"warehouses"`
}

// FromSummary converts summaries to response DTOs.
func FromSummary(rows []balance.ItemSummary) []ItemSummaryResponse {
	out := make([]ItemSummaryResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, ItemSummaryResponse{
			ItemID:         r.ItemID.String(),
			OpeningBalance: r.OpeningBalance,
			ClosingBalance: r.ClosingBalance,
			Received:       r.Received,
			Warehouses:     r.Warehouses,
		})
	}
	return out
}

// OpeningStockResponse represents an opening stock record. Balance is set
// by writes and carries the resulting balance of the key.
type OpeningStockResponse struct {
	ID          string           `json:"id"`
	ItemID      string           `json:"itemId"`
	WarehouseID *string          `json:"warehouseId,omitempty"`
	Quantity    types.Quantity   `json:"quantity"`
	Rate        types.Money      `json:"rate"`
	Amount      types.Money      `json:"amount"`
	Version     int              `json:"version"`
	Balance     *BalanceResponse `json:"balance,omitempty"`
}

// FromOpeningStock converts entity to response DTO.
func FromOpeningStock(o *balance.OpeningStock, b *balance.Balance) OpeningStockResponse {
	resp := FromOpeningStockRecord(*o)
	if b != nil {
		br := FromBalance(*b)
		resp.Balance = &br
	}
	return resp
}

// FromOpeningStockRecord converts a stored record to response DTO.
func FromOpeningStockRecord(o balance.OpeningStock) OpeningStockResponse {
	return OpeningStockResponse{
		ID:          o.ID.String(),
		ItemID:      o.ItemID.String(),
		WarehouseID: optionalString(o.WarehouseID),
		Quantity:    o.Quantity,
		Rate:        o.Rate,
		Amount:      o.Amount,
		Version:     o.Version,
	}
}
