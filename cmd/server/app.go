package main

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"permission-gate/internal/admin"
	"permission-gate/internal/apperror"
	"permission-gate/internal/auth"
	"permission-gate/internal/authz"
	"permission-gate/internal/instrument"
	"permission-gate/internal/logging"
)

// deps are the services the HTTP surface exposes.
type deps struct {
	authSecret string
	gateway    *authz.Gateway
	admin      *admin.Handler
	events     *instrument.EventBuffer
	tracer     instrument.Instrumenter
	logger     *zap.Logger
}

func newApp(d deps) *fiber.App {
	d.logger = logging.OrNop(d.logger)
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(d.logger),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	if d.tracer != nil {
		app.Use(instrument.Middleware(d.tracer))
	}
	app.Use(requestLogger(d.logger))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authMW := auth.AuthMiddleware(d.authSecret)
	adminMW := auth.RequireAdmin()

	authz.RegisterRoutes(app, authz.NewHandler(d.gateway), authMW)

	if d.events != nil {
		events := instrument.NewEventHandler(d.events)
		app.Get("/_events", authMW, adminMW, events.List)
		app.Get("/_events/trace/:traceId", authMW, adminMW, events.GetTrace)
	}

	admin.RegisterAdminRoutes(app, d.admin, authMW, adminMW)
	return app
}

func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		logger.Debug("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()))
		return err
	}
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if appErr, ok := apperror.As(err); ok {
			return c.Status(appErr.Status).JSON(apperror.ErrorResponse{Error: appErr})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(apperror.ErrorResponse{
				Error: apperror.NewAppError(apperror.CodeInternal, fiberErr.Code, fiberErr.Message),
			})
		}

		logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(apperror.ErrorResponse{
			Error: apperror.NewAppError(apperror.CodeInternal, fiber.StatusInternalServerError, "Internal server error"),
		})
	}
}
