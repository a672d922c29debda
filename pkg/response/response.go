package response

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
)

// Envelope wraps provisioning and credential payloads under "data".
type Envelope struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// ErrorBody is the only error shape returned by the platform.
type ErrorBody struct {
	Error string `json:"error"`
}

// Meta represents metadata for paginated responses
type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginationParams represents pagination input parameters
type PaginationParams struct {
	Page    int
	PerPage int
}

// DefaultPagination returns default pagination values
func DefaultPagination() PaginationParams {
	return PaginationParams{Page: 1, PerPage: 20}
}

// Normalize clamps page and per-page into sane bounds.
func (p PaginationParams) Normalize() PaginationParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}
	if p.PerPage > 100 {
		p.PerPage = 100
	}
	return p
}

// Offset returns the row offset of the current page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// NewMeta creates pagination metadata.
func NewMeta(page, perPage int, total int64) *Meta {
	totalPages := 0
	if perPage > 0 {
		totalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return &Meta{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Wrap envelopes data.
func Wrap(data interface{}) *Envelope {
	return &Envelope{Data: data}
}

// WrapWithMeta envelopes a paginated list.
func WrapWithMeta(data interface{}, meta *Meta) *Envelope {
	return &Envelope{Data: data, Meta: meta}
}

// Error builds an error body.
func Error(message string) *ErrorBody {
	return &ErrorBody{Error: message}
}

// FromError maps a classified error to its status and caller-safe body.
func FromError(err error) (int, *ErrorBody) {
	return apperror.HTTPStatus(err), Error(apperror.PublicMessage(err))
}

// --- gin helpers ---

// Data writes {"data": payload}.
func Data(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, Wrap(payload))
}

// Raw writes payload without an envelope. Used by read actions.
func Raw(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// Fail writes the error body for err.
func Fail(c *gin.Context, err error) {
	status, body := FromError(err)
	c.JSON(status, body)
}

// AbortWithError aborts the chain with the error body for err.
func AbortWithError(c *gin.Context, err error) {
	status, body := FromError(err)
	c.AbortWithStatusJSON(status, body)
}
