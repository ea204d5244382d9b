package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/journal"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// JournalHandler handles HTTP requests for stock journals.
type JournalHandler struct {
	*BaseHandler
	service *journal.Service
}

// NewJournalHandler creates a new journal handler.
func NewJournalHandler(base *BaseHandler, service *journal.Service) *JournalHandler {
	return &JournalHandler{BaseHandler: base, service: service}
}

// Submit records a journal and all of its postings.
// POST /inventory/journals
func (h *JournalHandler) Submit(c *gin.Context) {
	var req dto.JournalRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := req.ToDocument(h.GetOrganizationID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.Submit(c.Request.Context(), doc)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromSubmitResult(result))
}

// Get returns a journal with its lines.
// GET /inventory/journals/:id
func (h *JournalHandler) Get(c *gin.Context) {
	journalID, ok := h.ParamID(c)
	if !ok {
		return
	}
	doc, err := h.service.Get(c.Request.Context(), h.GetOrganizationID(c), journalID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromJournal(doc))
}

// List returns journal headers.
// GET /inventory/journals
func (h *JournalHandler) List(c *gin.Context) {
	var req dto.ListJournalsRequest
	if !h.BindQuery(c, &req) {
		return
	}

	page, err := h.service.List(c.Request.Context(), req.ToFilter(h.GetOrganizationID(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(page, dto.FromJournal))
}

// Update replaces a journal and reposts it.
// PUT /inventory/journals/:id
func (h *JournalHandler) Update(c *gin.Context) {
	journalID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.JournalRequest
	if !h.BindJSON(c, &req) {
		return
	}
	doc, err := req.ToUpdate(h.GetOrganizationID(c), journalID)
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.Update(c.Request.Context(), doc)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSubmitResult(result))
}

// Delete reverses a journal and removes it.
// DELETE /inventory/journals/:id
func (h *JournalHandler) Delete(c *gin.Context) {
	journalID, ok := h.ParamID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), h.GetOrganizationID(c), journalID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// History returns the audit trail of a journal.
// GET /inventory/journals/:id/history
func (h *JournalHandler) History(c *gin.Context) {
	journalID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.HistoryRequest
	if !h.BindQuery(c, &req) {
		return
	}

	records, err := h.service.History(c.Request.Context(), h.GetOrganizationID(c), journalID, req.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": dto.FromAuditRecords(records)})
}
