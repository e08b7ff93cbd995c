package instrument

import (
	"github.com/gofiber/fiber/v2"
)

// Middleware attaches inst to the request context and records one span per
// request.
func Middleware(inst Instrumenter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := WithInstrumenter(c.UserContext(), inst)
		ctx, span := inst.StartSpan(ctx, "http", "server", "request")
		defer span.End()
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())

		c.SetUserContext(ctx)
		if id := span.TraceID(); id != "" {
			c.Set("X-Trace-Id", id)
		}

		err := c.Next()
		status := c.Response().StatusCode()
		span.SetMetadata("status", status)
		if err != nil || status >= 500 {
			span.SetStatus("error")
		}
		return err
	}
}
