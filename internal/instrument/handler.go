package instrument

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// EventHandler exposes the buffered spans over REST (admin only).
type EventHandler struct {
	buffer *EventBuffer
}

func NewEventHandler(buffer *EventBuffer) *EventHandler {
	return &EventHandler{buffer: buffer}
}

// List handles GET /_events: recent events with filters and pagination.
func (h *EventHandler) List(c *fiber.Ctx) error {
	events := h.buffer.List(Query{
		Source:    c.Query("source"),
		Component: c.Query("component"),
		Action:    c.Query("action"),
		Status:    c.Query("status"),
		TraceID:   c.Query("trace_id"),
		UserID:    c.Query("user_id"),
	})

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}

	total := len(events)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return c.JSON(fiber.Map{
		"data": events[start:end],
		"pagination": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    total,
		},
	})
}

// GetTrace handles GET /_events/trace/:traceId: every span of one trace,
// oldest first.
func (h *EventHandler) GetTrace(c *fiber.Ctx) error {
	traceID := c.Params("traceId")
	if traceID == "" {
		return c.Status(422).JSON(fiber.Map{"error": fiber.Map{"code": "VALIDATION_FAILED", "message": "trace_id is required"}})
	}

	events := h.buffer.List(Query{TraceID: traceID})
	if len(events) == 0 {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "Trace not found: " + traceID}})
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	var totalMs float64
	for _, e := range events {
		if e.ParentSpanID == "" {
			totalMs = e.DurationMs
		}
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"trace_id":          traceID,
			"spans":             events,
			"total_duration_ms": totalMs,
		},
	})
}
