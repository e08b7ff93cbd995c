package condition

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"permission-gate/internal/apperror"
	"permission-gate/internal/filter"
	"permission-gate/internal/logging"
	"permission-gate/internal/metadata"
)

// Evaluator checks whether every record a caller targets satisfies a
// condition filter. Table collections are counted by tables, virtual ones in
// memory.
type Evaluator struct {
	tables  RecordCounter
	virtual RecordCounter
	logger  *zap.Logger
	now     func() time.Time
}

func NewEvaluator(tables RecordCounter, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		tables:  tables,
		virtual: MemorySource{},
		logger:  logging.OrNop(logger),
		now:     time.Now,
	}
}

// WithClock overrides the time source used by date operators.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// CountMatching returns the number of records in the selector that satisfy
// cond. Every failure is an ACTION_CONDITION_ERROR.
func (e *Evaluator) CountMatching(ctx context.Context, c *metadata.Collection, cond filter.Node, timezone string, sel filter.Selector) (int, error) {
	n, err := e.count(ctx, c, cond, timezone, sel)
	if err != nil {
		return 0, e.fail(c, err)
	}
	return n, nil
}

// Matches reports whether every targeted record satisfies cond: the filtered
// count must equal the number of targeted records.
func (e *Evaluator) Matches(ctx context.Context, c *metadata.Collection, cond filter.Node, timezone string, sel filter.Selector) (bool, error) {
	expected, err := e.selectorSize(ctx, c, timezone, sel)
	if err != nil {
		return false, e.fail(c, err)
	}
	n, err := e.count(ctx, c, cond, timezone, sel)
	if err != nil {
		return false, e.fail(c, err)
	}
	return n == expected, nil
}

func (e *Evaluator) selectorSize(ctx context.Context, c *metadata.Collection, timezone string, sel filter.Selector) (int, error) {
	if !sel.AllRecords {
		return len(sel.Explicit()), nil
	}
	return e.count(ctx, c, nil, timezone, sel)
}

func (e *Evaluator) count(ctx context.Context, c *metadata.Collection, cond filter.Node, timezone string, sel filter.Selector) (int, error) {
	if c == nil {
		return 0, fmt.Errorf("unknown collection")
	}
	loc, err := filter.LoadLocation(timezone)
	if err != nil {
		return 0, err
	}
	src := e.tables
	if c.Virtual {
		src = e.virtual
	}
	if src == nil {
		return 0, fmt.Errorf("no record store for collection %s", c.Name)
	}
	return src.CountMatching(ctx, Query{
		Collection: c,
		Filter:     cond,
		Selector:   sel,
		Location:   loc,
		Now:        e.now(),
	})
}

func (e *Evaluator) fail(c *metadata.Collection, err error) error {
	name := ""
	if c != nil {
		name = c.Name
	}
	e.logger.Error("condition evaluation failed", zap.String("collection", name), zap.Error(err))
	return apperror.ConditionError(err)
}
