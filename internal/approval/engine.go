package approval

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"permission-gate/internal/apperror"
	"permission-gate/internal/filter"
	"permission-gate/internal/instrument"
	"permission-gate/internal/logging"
	"permission-gate/internal/metadata"
	"permission-gate/internal/permission"
)

type Outcome string

const (
	Triggered       Outcome = "TRIGGERED"
	PendingApproval Outcome = "PENDING_APPROVAL"
	Denied          Outcome = "DENIED"
	ConditionFailed Outcome = "CONDITION_ERROR"
)

// Decision is the terminal state of one smart action call.
type Decision struct {
	Outcome Outcome
	// Approvers lists the principals able to approve a pending request.
	Approvers []int64
	// Cause is set for ConditionFailed.
	Cause error
}

// Err maps the decision to the error returned to the caller, nil when the
// action may run.
func (d Decision) Err() error {
	switch d.Outcome {
	case Triggered:
		return nil
	case PendingApproval:
		return apperror.RequireApproval(d.Approvers)
	case ConditionFailed:
		if appErr, ok := apperror.As(d.Cause); ok && appErr.Code == apperror.CodeConditionError {
			return appErr
		}
		return apperror.ConditionError(d.Cause)
	default:
		return apperror.TriggerForbidden()
	}
}

// Actor is the user triggering or approving the action.
type Actor struct {
	UserID string
	// Principal is the identity matched against the gates; Known is false
	// when the user has none.
	Principal int64
	Known     bool
}

// ConditionMatcher reports whether every record of a selector satisfies a
// condition.
type ConditionMatcher interface {
	Matches(ctx context.Context, c *metadata.Collection, cond filter.Node, timezone string, sel filter.Selector) (bool, error)
}

// Verifier decodes a signed approval request.
type Verifier interface {
	Verify(token string) (map[string]any, error)
}

var (
	errNoRecords       = errors.New("no records targeted by the action")
	errTriggerMismatch = errors.New("records do not satisfy the trigger conditions")
)

// Engine decides smart action calls.
type Engine struct {
	conditions ConditionMatcher
	verifier   Verifier
	logger     *zap.Logger
}

func NewEngine(conditions ConditionMatcher, verifier Verifier, logger *zap.Logger) *Engine {
	return &Engine{conditions: conditions, verifier: verifier, logger: logging.OrNop(logger)}
}

// Decide runs the approval gates of ap, in order: direct trigger, replay of
// a signed approval request, request for approval. Anything else is denied.
func (e *Engine) Decide(ctx context.Context, req Request, ap *permission.ActionPermission, actor Actor, c *metadata.Collection) Decision {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "approval", "engine", "decide")
	defer span.End()

	d := e.decide(ctx, req, ap, actor, c)

	span.SetMetadata("outcome", string(d.Outcome))
	if d.Outcome == ConditionFailed {
		span.SetStatus("error")
	}
	fields := []zap.Field{
		zap.String("outcome", string(d.Outcome)),
		zap.String("user_id", actor.UserID),
	}
	if c != nil {
		fields = append(fields, zap.String("collection", c.Name))
	}
	if d.Cause != nil {
		fields = append(fields, zap.Error(d.Cause))
	}
	e.logger.Debug("action decided", fields...)
	return d
}

func (e *Engine) decide(ctx context.Context, req Request, ap *permission.ActionPermission, actor Actor, c *metadata.Collection) Decision {
	if ap == nil {
		return Decision{Outcome: Denied}
	}
	canTrigger := ap.TriggerEnabled.Allows(actor.Principal, actor.Known)
	needsApproval := ap.ApprovalRequired.Allows(actor.Principal, actor.Known)

	switch {
	case canTrigger && !needsApproval:
		ok, err := e.match(ctx, ap.TriggerConditions, c, req)
		if err != nil {
			return conditionFailed(err)
		}
		if !ok {
			return conditionFailed(errTriggerMismatch)
		}
		return Decision{Outcome: Triggered}

	case req.SignedApprovalRequest != "" && ap.UserApprovalEnabled.Allows(actor.Principal, actor.Known):
		signed, err := e.replay(req.SignedApprovalRequest)
		if err != nil {
			return conditionFailed(err)
		}
		ok, err := e.match(ctx, ap.UserApprovalConditions, c, signed)
		if err != nil {
			return conditionFailed(err)
		}
		selfApproval := signed.RequesterID == actor.UserID
		if ok && (!selfApproval || ap.SelfApprovalEnabled.Allows(actor.Principal, actor.Known)) {
			return Decision{Outcome: Triggered}
		}

	case needsApproval:
		ok, err := e.match(ctx, ap.ApprovalRequiredConditions, c, req)
		if err != nil {
			return conditionFailed(err)
		}
		if ok {
			return Decision{Outcome: PendingApproval, Approvers: ap.UserApprovalEnabled.IDs()}
		}
	}
	return Decision{Outcome: Denied}
}

// replay verifies a signed approval request and returns the original call
// it embeds.
func (e *Engine) replay(token string) (Request, error) {
	if e.verifier == nil {
		return Request{}, errors.New("no approval request verifier configured")
	}
	payload, err := e.verifier.Verify(token)
	if err != nil {
		return Request{}, err
	}
	return ParseRequest(payload)
}

// match evaluates the first condition of groups against the request's
// records. No condition passes.
func (e *Engine) match(ctx context.Context, groups []permission.ConditionGroup, c *metadata.Collection, req Request) (bool, error) {
	cond, ok := permission.FirstCondition(groups)
	if !ok {
		return true, nil
	}
	if !req.targetsRecords() {
		return false, errNoRecords
	}
	if e.conditions == nil {
		return false, errors.New("no condition evaluator configured")
	}
	return e.conditions.Matches(ctx, c, cond, req.Timezone, req.Selector)
}

func conditionFailed(err error) Decision {
	return Decision{Outcome: ConditionFailed, Cause: err}
}
