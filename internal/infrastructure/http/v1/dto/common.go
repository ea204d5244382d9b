// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// --- Pagination ---

// ListRequest contains paging query parameters shared by list endpoints.
type ListRequest struct {
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset  int    `form:"offset" binding:"omitempty,min=0"`
	OrderBy string `form:"orderBy"`
}

// ToFilter converts paging parameters to a domain filter.
func (r ListRequest) ToFilter() domain.ListFilter {
	return domain.ListFilter{Limit: r.Limit, Offset: r.Offset, OrderBy: r.OrderBy}
}

// --- List Response ---

// ListResponse wraps list results with pagination.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// NewListResponse maps a domain page with fn.
func NewListResponse[S, T any](page domain.ListResult[S], fn func(S) T) ListResponse[T] {
	items := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, fn(item))
	}
	return ListResponse[T]{
		Items:      items,
		TotalCount: page.TotalCount,
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
}

// --- Base DTOs ---

// BaseResponse contains common response fields.
type BaseResponse struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
}

// FromBase creates BaseResponse from entity.BaseEntity.
func FromBase(b entity.BaseEntity) BaseResponse {
	return BaseResponse{
		ID:        b.ID.String(),
		Version:   b.Version,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
		CreatedBy: b.CreatedBy,
	}
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- ID parsing ---

// fieldErrors collects invalid identifiers of one request.
type fieldErrors struct {
	err *apperror.AppError
}

func (f *fieldErrors) add(field, reason string) {
	if f.err == nil {
		f.err = apperror.NewValidation("invalid request body")
	}
	f.err.WithField(field, reason)
}

func (f *fieldErrors) id(field, raw string) id.ID {
	v, err := id.Parse(raw)
	if err != nil {
		f.add(field, "must be a UUID")
	}
	return v
}

func (f *fieldErrors) optionalID(field string, raw *string) *id.ID {
	if raw == nil {
		return nil
	}
	v, err := id.ParseOptional(*raw)
	if err != nil {
		f.add(field, "must be a UUID")
		return nil
	}
	return v
}

func (f *fieldErrors) result() error {
	if f.err == nil {
		return nil
	}
	return f.err
}
