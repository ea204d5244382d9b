package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/balance"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// StockHandler handles HTTP requests for stock balances.
type StockHandler struct {
	*BaseHandler
	service *balance.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, service *balance.Service) *StockHandler {
	return &StockHandler{BaseHandler: base, service: service}
}

// GetBalance returns the balance of one key; absent keys read as zero.
// GET /inventory/balances?itemId=&warehouseId=
func (h *StockHandler) GetBalance(c *gin.Context) {
	var req dto.BalanceRequest
	if !h.BindQuery(c, &req) {
		return
	}
	key, err := req.ToKey(h.GetOrganizationID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	b, err := h.service.Get(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromBalance(*b))
}

// Report lists balance rows.
// GET /inventory/balances/report
func (h *StockHandler) Report(c *gin.Context) {
	var req dto.StockReportRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter, err := req.ToFilter(h.GetOrganizationID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	page, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(page, dto.FromBalance))
}

// Summary aggregates balances per item.
// GET /inventory/balances/summary
func (h *StockHandler) Summary(c *gin.Context) {
	rows, err := h.service.SummaryByItem(c.Request.Context(), h.GetOrganizationID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": dto.FromSummary(rows)})
}

// RecordOpeningStock adds stock that existed before the ledger started.
// POST /inventory/opening-stock
func (h *StockHandler) RecordOpeningStock(c *gin.Context) {
	var req dto.OpeningStockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	o, err := req.ToEntity(h.GetOrganizationID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	b, err := h.service.RecordOpeningStock(c.Request.Context(), o)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromOpeningStock(o, b))
}

// GetOpeningStock returns one opening stock record.
// GET /inventory/opening-stock/:id
func (h *StockHandler) GetOpeningStock(c *gin.Context) {
	openingID, ok := h.ParamID(c)
	if !ok {
		return
	}
	o, err := h.service.GetOpeningStock(c.Request.Context(), h.GetOrganizationID(c), openingID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOpeningStock(o, nil))
}

// ListOpeningStock returns opening stock records.
// GET /inventory/opening-stock
func (h *StockHandler) ListOpeningStock(c *gin.Context) {
	var req dto.ListOpeningStockRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter, err := req.ToFilter(h.GetOrganizationID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	page, err := h.service.ListOpeningStock(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(page, dto.FromOpeningStockRecord))
}

// UpdateOpeningStock changes the quantity of a record and moves the balance
// by the difference.
// PUT /inventory/opening-stock/:id
func (h *StockHandler) UpdateOpeningStock(c *gin.Context) {
	openingID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.OpeningStockUpdateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	o, b, err := h.service.UpdateOpeningStock(c.Request.Context(), h.GetOrganizationID(c), openingID, req.ToChange())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOpeningStock(o, b))
}

// DeleteOpeningStock removes a record and takes its quantity back out of the
// balance.
// DELETE /inventory/opening-stock/:id
func (h *StockHandler) DeleteOpeningStock(c *gin.Context) {
	openingID, ok := h.ParamID(c)
	if !ok {
		return
	}
	if _, err := h.service.DeleteOpeningStock(c.Request.Context(), h.GetOrganizationID(c), openingID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
