package authz

import (
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"permission-gate/internal/apperror"
	"permission-gate/internal/auth"
	"permission-gate/internal/filter"
)

type authorizeRequest struct {
	Kind       string          `json:"kind" validate:"required"`
	Collection string          `json:"collection" validate:"required_unless=Kind chart"`
	Parameters map[string]any  `json:"parameters"`
	Endpoint   string          `json:"endpoint"`
	HTTPMethod string          `json:"http_method"`
	Filter     json.RawMessage `json:"filter"`
}

// Handler serves authorization checks over HTTP.
type Handler struct {
	gateway   *Gateway
	validator *validator.Validate
}

func NewHandler(g *Gateway) *Handler {
	return &Handler{gateway: g, validator: validator.New()}
}

func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	handlers := append(middleware, h.Authorize)
	app.Post("/authorize", handlers...)
}

// Authorize handles POST /authorize. It answers 204 when the user may
// proceed, or the AppError refusing the request.
func (h *Handler) Authorize(c *fiber.Ctx) error {
	var body authorizeRequest
	if err := c.BodyParser(&body); err != nil {
		return apperror.ValidationError("Invalid JSON body")
	}
	if err := h.validator.Struct(body); err != nil {
		return validationError(err)
	}

	var listFilter filter.Node
	if len(body.Filter) > 0 {
		n, err := filter.Parse(body.Filter)
		if err != nil {
			return apperror.ValidationError(err.Error(), apperror.ErrorDetail{Field: "filter", Message: err.Error()})
		}
		listFilter = n
	}

	err := h.gateway.Authorize(c.UserContext(), body.Kind, auth.GetUser(c), body.Collection, Context{
		Parameters: body.Parameters,
		Endpoint:   body.Endpoint,
		HTTPMethod: body.HTTPMethod,
		ListFilter: listFilter,
	})
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.ValidationError(err.Error())
	}
	details := make([]apperror.ErrorDetail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, apperror.ErrorDetail{
			Field:   fe.Field(),
			Message: "failed on the '" + fe.Tag() + "' rule",
		})
	}
	return apperror.ValidationError("Invalid authorization request", details...)
}
