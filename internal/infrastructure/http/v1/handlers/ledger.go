package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// LedgerHandler handles HTTP requests for ledger entries.
type LedgerHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *BaseHandler, service *ledger.Service) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, service: service}
}

// Post records one movement.
// POST /inventory/transactions
func (h *LedgerHandler) Post(c *gin.Context) {
	var req dto.PostMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput(h.GetOrganizationID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	entry, err := h.service.Post(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromEntry(entry))
}

// BulkPost records a batch of movements; none is kept if any fails.
// POST /inventory/transactions/bulk
func (h *LedgerHandler) BulkPost(c *gin.Context) {
	var req dto.BulkPostRequest
	if !h.BindJSON(c, &req) {
		return
	}
	orgID := h.GetOrganizationID(c)
	inputs, err := req.ToInputs(orgID)
	if err != nil {
		h.Error(c, err)
		return
	}

	entries, err := h.service.BulkPost(c.Request.Context(), orgID, inputs)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, gin.H{"items": dto.FromEntries(entries)})
}

// Get returns one entry.
// GET /inventory/transactions/:id
func (h *LedgerHandler) Get(c *gin.Context) {
	entryID, ok := h.ParamID(c)
	if !ok {
		return
	}
	entry, err := h.service.Get(c.Request.Context(), h.GetOrganizationID(c), entryID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromEntry(entry))
}

// List returns entries of the organization.
// GET /inventory/transactions
func (h *LedgerHandler) List(c *gin.Context) {
	var req dto.ListEntriesRequest
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
	h.OK(c, dto.NewListResponse(page, dto.FromEntry))
}

// Update replaces the values of an entry.
// PUT /inventory/transactions/:id
func (h *LedgerHandler) Update(c *gin.Context) {
	entryID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.UpdateMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput(h.GetOrganizationID(c), entryID)
	if err != nil {
		h.Error(c, err)
		return
	}

	entry, err := h.service.Update(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromEntry(entry))
}

// Delete reverses and removes an entry.
// DELETE /inventory/transactions/:id
func (h *LedgerHandler) Delete(c *gin.Context) {
	entryID, ok := h.ParamID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), h.GetOrganizationID(c), entryID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
