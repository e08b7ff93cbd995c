package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"permission-gate/internal/filter"
)

// CountQuery describes a COUNT over one collection table, restricted by a
// condition filter and the caller's record selector.
type CountQuery struct {
	Table      string
	PrimaryKey string
	SoftDelete bool
	HasField   func(string) bool
	Filter     filter.Node
	Selector   *filter.Selector
	Location   *time.Location
	Now        time.Time
}

type QueryResult struct {
	SQL    string
	Params []any
}

// CountMatching returns how many rows satisfy the query's filter and selector.
func (s *Store) CountMatching(ctx context.Context, q CountQuery) (int, error) {
	built, err := BuildCountSQL(s.Dialect, q)
	if err != nil {
		return 0, err
	}
	n, err := QueryInt(ctx, s.DB, built.SQL, built.Params...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Table, err)
	}
	return n, nil
}

// BuildCountSQL builds the parameterized COUNT statement for q.
func BuildCountSQL(d Dialect, q CountQuery) (QueryResult, error) {
	if !filter.ValidIdentifier(q.Table) {
		return QueryResult{}, fmt.Errorf("%w: invalid table %q", filter.ErrMalformed, q.Table)
	}
	pk := q.PrimaryKey
	if pk == "" {
		pk = "id"
	}
	if !filter.ValidIdentifier(pk) {
		return QueryResult{}, fmt.Errorf("%w: invalid primary key %q", filter.ErrMalformed, pk)
	}
	if err := filter.Validate(q.Filter, q.HasField); err != nil {
		return QueryResult{}, err
	}
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}

	pb := d.NewParamBuilder()
	var where []string

	if q.SoftDelete {
		where = append(where, "deleted_at IS NULL")
	}

	if q.Filter != nil {
		b := &whereBuilder{dialect: d, pb: pb, loc: q.Location, now: now}
		clause, err := b.build(q.Filter)
		if err != nil {
			return QueryResult{}, err
		}
		where = append(where, "("+clause+")")
	}

	if q.Selector != nil {
		if q.Selector.AllRecords {
			where = append(where, d.NotInExpr(pk, pb, filter.Values(q.Selector.ExcludedIDs)))
		} else {
			where = append(where, d.InExpr(pk, pb, filter.Values(q.Selector.Explicit())))
		}
	}

	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s", q.Table)
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	return QueryResult{SQL: sql, Params: pb.Params()}, nil
}

type whereBuilder struct {
	dialect Dialect
	pb      ParamBuilder
	loc     *time.Location
	now     time.Time
}

func (b *whereBuilder) build(n filter.Node) (string, error) {
	switch v := n.(type) {
	case *filter.Aggregation:
		parts := make([]string, 0, len(v.Conditions))
		for _, child := range v.Conditions {
			clause, err := b.build(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+clause+")")
		}
		joiner := " AND "
		if v.Aggregator == filter.AggregatorOr {
			joiner = " OR "
		}
		return strings.Join(parts, joiner), nil
	case *filter.Condition:
		return b.condition(v)
	}
	return "", fmt.Errorf("%w: unexpected node %T", filter.ErrMalformed, n)
}

func (b *whereBuilder) condition(c *filter.Condition) (string, error) {
	f := c.Field
	like := b.dialect.LikeOperator()

	switch c.Operator {
	case "equal":
		if c.Value == nil {
			return f + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", f, b.pb.Add(c.Value)), nil
	case "not_equal":
		if c.Value == nil {
			return f + " IS NOT NULL", nil
		}
		return fmt.Sprintf("(%s != %s OR %s IS NULL)", f, b.pb.Add(c.Value), f), nil
	case "greater_than":
		return fmt.Sprintf("%s > %s", f, b.pb.Add(c.Value)), nil
	case "less_than":
		return fmt.Sprintf("%s < %s", f, b.pb.Add(c.Value)), nil
	case "in":
		return b.dialect.InExpr(f, b.pb, filter.ListValue(c.Value)), nil
	case "not_in":
		return fmt.Sprintf("(%s OR %s IS NULL)", b.dialect.NotInExpr(f, b.pb, filter.ListValue(c.Value)), f), nil
	case "present":
		return f + " IS NOT NULL", nil
	case "blank":
		return f + " IS NULL", nil
	case "contains":
		return fmt.Sprintf("%s %s %s", f, like, b.pb.Add("%"+fmt.Sprint(c.Value)+"%")), nil
	case "not_contains":
		return fmt.Sprintf("(%s IS NULL OR %s NOT %s %s)", f, f, like, b.pb.Add("%"+fmt.Sprint(c.Value)+"%")), nil
	case "starts_with":
		return fmt.Sprintf("%s %s %s", f, like, b.pb.Add(fmt.Sprint(c.Value)+"%")), nil
	case "ends_with":
		return fmt.Sprintf("%s %s %s", f, like, b.pb.Add("%"+fmt.Sprint(c.Value))), nil
	}

	if filter.IsDateOperator(c.Operator) {
		r, err := filter.DateRange(c.Operator, c.Value, b.loc, b.now)
		if err != nil {
			return "", err
		}
		var parts []string
		if r.From != nil {
			op := ">="
			if r.FromStrict {
				op = ">"
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", f, op, b.pb.Add(b.dialect.TimeParam(*r.From))))
		}
		if r.To != nil {
			parts = append(parts, fmt.Sprintf("%s < %s", f, b.pb.Add(b.dialect.TimeParam(*r.To))))
		}
		return strings.Join(parts, " AND "), nil
	}
	return "", fmt.Errorf("%w: unknown operator %q", filter.ErrMalformed, c.Operator)
}
