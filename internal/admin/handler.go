package admin

import (
	"fmt"
	"sort"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"permission-gate/internal/logging"
	"permission-gate/internal/metadata"
	"permission-gate/internal/permission"
)

type Handler struct {
	cache      *permission.Cache
	registry   *metadata.Registry
	schemaPath string
	logger     *zap.Logger
}

func NewHandler(cache *permission.Cache, reg *metadata.Registry, schemaPath string, logger *zap.Logger) *Handler {
	return &Handler{cache: cache, registry: reg, schemaPath: schemaPath, logger: logging.OrNop(logger)}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	reset := append(append([]fiber.Handler{}, middleware...), h.ResetCache)
	app.Delete("/cache", reset...)

	admin := app.Group("/_admin", middleware...)
	admin.Get("/collections", h.ListCollections)
	admin.Get("/collections/:name", h.GetCollection)
	admin.Post("/schema/reload", h.ReloadSchema)
}

// ResetCache handles DELETE /cache.
func (h *Handler) ResetCache(c *fiber.Ctx) error {
	if err := h.cache.Reset(c.UserContext()); err != nil {
		return fmt.Errorf("reset permission cache: %w", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) ListCollections(c *fiber.Ctx) error {
	collections := h.registry.AllCollections()
	sort.Slice(collections, func(i, j int) bool { return collections[i].Name < collections[j].Name })
	out := make([]fiber.Map, 0, len(collections))
	for _, coll := range collections {
		out = append(out, summary(coll))
	}
	return c.JSON(fiber.Map{"data": out})
}

func (h *Handler) GetCollection(c *fiber.Ctx) error {
	name := c.Params("name")
	coll := h.registry.GetCollection(name)
	if coll == nil {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "Collection not found: " + name}})
	}
	return c.JSON(fiber.Map{"data": summary(coll)})
}

// ReloadSchema re-reads the collection schema file into the registry.
func (h *Handler) ReloadSchema(c *fiber.Ctx) error {
	if err := metadata.LoadFile(h.schemaPath, h.registry, h.logger); err != nil {
		return fmt.Errorf("reload schema: %w", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"collections": len(h.registry.AllCollections())}})
}

func summary(c *metadata.Collection) fiber.Map {
	return fiber.Map{
		"name":        c.Name,
		"table":       c.TableName(),
		"primary_key": c.PrimaryKeyField(),
		"virtual":     c.Virtual,
		"fields":      c.FieldNames(),
		"actions":     c.Actions,
	}
}
