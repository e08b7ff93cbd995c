package authz

import (
	"context"

	"go.uber.org/zap"

	"permission-gate/internal/apperror"
	"permission-gate/internal/approval"
	"permission-gate/internal/filter"
	"permission-gate/internal/instrument"
	"permission-gate/internal/logging"
	"permission-gate/internal/metadata"
	"permission-gate/internal/permission"
)

const (
	KindChart  = "chart"
	KindAction = "action"
)

// Context carries the request details some kinds need.
type Context struct {
	Parameters map[string]any
	Endpoint   string
	HTTPMethod string
	// ListFilter is the filter of a browse request, checked against the
	// collection scope.
	ListFilter filter.Node
}

// Gateway is the single entry point for authorization checks.
type Gateway struct {
	cache    *permission.Cache
	engine   *approval.Engine
	registry *metadata.Registry
	logger   *zap.Logger
}

func NewGateway(cache *permission.Cache, engine *approval.Engine, registry *metadata.Registry, logger *zap.Logger) *Gateway {
	return &Gateway{cache: cache, engine: engine, registry: registry, logger: logging.OrNop(logger)}
}

// Authorize returns nil when user may perform kind on collection. kind is a
// CRUD kind, "chart" or "action".
func (g *Gateway) Authorize(ctx context.Context, kind string, user *metadata.UserContext, collection string, ac Context) error {
	if user == nil {
		return apperror.UnauthorizedError("Missing user")
	}
	ctx = instrument.WithUserID(ctx, user.ID)
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "authz", "gateway", "authorize")
	defer span.End()
	span.SetMetadata("kind", kind)
	span.SetMetadata("collection", collection)

	err := g.dispatch(ctx, kind, user, collection, ac)
	if err != nil {
		span.SetStatus("error")
		if appErr, ok := apperror.As(err); ok {
			span.SetMetadata("code", appErr.Code)
		}
		g.logger.Info("authorization refused",
			zap.String("kind", kind),
			zap.String("collection", collection),
			zap.String("user_id", user.ID),
			zap.Int64("rendering_id", user.RenderingID),
			zap.Error(err))
	}
	return err
}

func (g *Gateway) dispatch(ctx context.Context, kind string, user *metadata.UserContext, collection string, ac Context) error {
	if k := permission.Kind(kind); k.IsCRUD() {
		ok, err := g.cache.IsAuthorized(ctx, permission.Check{
			Kind:       k,
			Collection: collection,
			User:       user,
			ListFilter: ac.ListFilter,
		})
		return allowed(ok, err)
	}

	switch kind {
	case KindChart:
		if ac.Parameters == nil {
			return apperror.ValidationError("The argument parameters is missing")
		}
		return allowed(g.cache.CheckChart(ctx, user, ac.Parameters))
	case KindAction:
		if ac.Parameters == nil || ac.Endpoint == "" || ac.HTTPMethod == "" {
			return apperror.ValidationError("You must implement the arguments : parameters, endpoint & http_method")
		}
		return g.authorizeAction(ctx, user, collection, ac)
	}
	return apperror.AccessDenied("Unknown action kind " + kind)
}

func (g *Gateway) authorizeAction(ctx context.Context, user *metadata.UserContext, collection string, ac Context) error {
	req, err := approval.ParseRequest(ac.Parameters)
	if err != nil {
		return apperror.ValidationError(err.Error())
	}
	action := g.registry.FindActionByEndpoint(collection, ac.Endpoint, ac.HTTPMethod)
	coll := g.registry.GetCollection(collection)

	// An action missing from the schema is denied unless open mode passes it.
	var decision approval.Decision
	ok, err := g.cache.Resolve(ctx, user.RenderingID, func(s *permission.Snapshot) (bool, error) {
		if action == nil {
			return false, apperror.AccessDenied("")
		}
		principal, known := s.Principal(user)
		actor := approval.Actor{UserID: user.ID, Principal: principal, Known: known}
		decision = g.engine.Decide(ctx, req, s.Action(collection, action.Name), actor, coll)
		if decision.Outcome == approval.ConditionFailed {
			return false, decision.Err()
		}
		return decision.Outcome == approval.Triggered, nil
	})
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return decision.Err()
}

// CanTrigger reports whether user holds the trigger grant of the action
// served at endpoint, without running the approval gates.
func (g *Gateway) CanTrigger(ctx context.Context, user *metadata.UserContext, collection, endpoint, httpMethod string) (bool, error) {
	action := g.registry.FindActionByEndpoint(collection, endpoint, httpMethod)
	if action == nil {
		return false, nil
	}
	return g.cache.IsAuthorized(ctx, permission.Check{
		Kind:       permission.Actions,
		Collection: collection,
		User:       user,
		Action:     action.Name,
	})
}

func allowed(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return apperror.AccessDenied("")
	}
	return nil
}
