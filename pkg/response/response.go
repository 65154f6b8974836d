// Package response writes the JSON envelope every endpoint returns: data or
// error, plus a meta block with the request id, the trace id when tracing is
// on, and the server time.
package response

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/BytebleCode/Investment-Platform/pkg/telemetry"
)

const apiVersion = "v1"

// Response is the envelope. Error is set only on failures.
type Response struct {
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
	Meta  Meta       `json:"meta"`
}

type ErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Meta contains request metadata. TraceID is empty when tracing is off.
type Meta struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// Page is one page of a list endpoint.
type Page struct {
	Items      any        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasMore    bool  `json:"has_more"`
}

// NewPagination computes the page count for total items. A page past the
// end is valid and simply has no items.
func NewPagination(page, perPage int, total int64) Pagination {
	if perPage <= 0 {
		perPage = 1
	}
	if page <= 0 {
		page = 1
	}
	pages := (total + int64(perPage) - 1) / int64(perPage)
	return Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: int(pages),
		HasMore:    int64(page) < pages,
	}
}

func Success(c *fiber.Ctx, data any) error {
	return write(c, fiber.StatusOK, Response{Data: data})
}

// Created is used when a request executed a trade.
func Created(c *fiber.Ctx, data any) error {
	return write(c, fiber.StatusCreated, Response{Data: data})
}

func Paginated(c *fiber.Ctx, items any, page, perPage int, total int64) error {
	return write(c, fiber.StatusOK, Response{Data: Page{
		Items:      items,
		Pagination: NewPagination(page, perPage, total),
	}})
}

func Error(c *fiber.Ctx, status int, code, message string, details ...string) error {
	return write(c, status, Response{Error: &ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

func write(c *fiber.Ctx, status int, r Response) error {
	r.Meta = buildMeta(c)
	return c.Status(status).JSON(r)
}

func buildMeta(c *fiber.Ctx) Meta {
	id := GetRequestID(c)
	if id == "" {
		id = uuid.NewString()
		c.Locals("request_id", id)
	}
	return Meta{
		RequestID: id,
		TraceID:   telemetry.TraceID(c.UserContext()),
		Timestamp: time.Now().UTC(),
		Version:   apiVersion,
	}
}

// GetRequestID returns the id set by the RequestID middleware, falling
// back to the incoming X-Request-ID header.
func GetRequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("request_id").(string); ok && id != "" {
		return id
	}
	return c.Get("X-Request-ID")
}
