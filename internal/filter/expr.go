package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Program is a filter tree compiled for evaluation against in-memory records.
type Program struct {
	source  string
	program *vm.Program
	params  map[string]any
}

type exprCompiler struct {
	params map[string]any
	loc    *time.Location
	now    time.Time
}

// Compile translates n into an expr program. A nil tree matches every record.
// Date fields of evaluated records must hold time.Time values.
func Compile(n Node, loc *time.Location, now time.Time) (*Program, error) {
	if err := Validate(n, nil); err != nil {
		return nil, err
	}
	c := &exprCompiler{params: map[string]any{}, loc: loc, now: now}

	src := "true"
	if n != nil {
		s, err := c.build(n)
		if err != nil {
			return nil, err
		}
		src = s
	}

	env := map[string]any{"record": map[string]any{}}
	for k, v := range c.params {
		env[k] = v
	}
	prog, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: compile %q: %v", ErrMalformed, src, err)
	}
	return &Program{source: src, program: prog, params: c.params}, nil
}

// Source returns the generated expression, for diagnostics.
func (p *Program) Source() string { return p.source }

// Match evaluates the program against one record.
func (p *Program) Match(record map[string]any) (bool, error) {
	env := make(map[string]any, len(p.params)+1)
	for k, v := range p.params {
		env[k] = v
	}
	env["record"] = record

	out, err := expr.Run(p.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate filter: %w", err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("evaluate filter: expected bool, got %T", out)
	}
	return matched, nil
}

func (c *exprCompiler) param(v any) string {
	name := fmt.Sprintf("p%d", len(c.params))
	c.params[name] = v
	return name
}

func (c *exprCompiler) build(n Node) (string, error) {
	switch v := n.(type) {
	case *Aggregation:
		parts := make([]string, 0, len(v.Conditions))
		for _, child := range v.Conditions {
			s, err := c.build(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+s+")")
		}
		joiner := " && "
		if v.Aggregator == AggregatorOr {
			joiner = " || "
		}
		return strings.Join(parts, joiner), nil
	case *Condition:
		return c.condition(v)
	}
	return "", fmt.Errorf("%w: unexpected node %T", ErrMalformed, n)
}

func (c *exprCompiler) condition(cond *Condition) (string, error) {
	f := fmt.Sprintf("record[%q]", cond.Field)
	notNil := f + " != nil"
	// String matching is case-insensitive, like ILIKE on the SQL side.
	lowered := "lower(string(" + f + "))"

	switch cond.Operator {
	case "equal":
		if cond.Value == nil {
			return f + " == nil", nil
		}
		return f + " == " + c.param(cond.Value), nil
	case "not_equal":
		if cond.Value == nil {
			return notNil, nil
		}
		return f + " != " + c.param(cond.Value), nil
	case "greater_than":
		return notNil + " && " + f + " > " + c.param(cond.Value), nil
	case "less_than":
		return notNil + " && " + f + " < " + c.param(cond.Value), nil
	case "in":
		return f + " in " + c.param(ListValue(cond.Value)), nil
	case "not_in":
		return "not (" + f + " in " + c.param(ListValue(cond.Value)) + ")", nil
	case "present":
		return notNil, nil
	case "blank":
		return f + " == nil", nil
	case "contains":
		return notNil + " && " + lowered + " contains " + c.param(strings.ToLower(fmt.Sprint(cond.Value))), nil
	case "not_contains":
		return "not (" + notNil + " && " + lowered + " contains " + c.param(strings.ToLower(fmt.Sprint(cond.Value))) + ")", nil
	case "starts_with":
		return notNil + " && " + lowered + " startsWith " + c.param(strings.ToLower(fmt.Sprint(cond.Value))), nil
	case "ends_with":
		return notNil + " && " + lowered + " endsWith " + c.param(strings.ToLower(fmt.Sprint(cond.Value))), nil
	}

	if IsDateOperator(cond.Operator) {
		r, err := DateRange(cond.Operator, cond.Value, c.loc, c.now)
		if err != nil {
			return "", err
		}
		parts := []string{notNil}
		if r.From != nil {
			op := " >= "
			if r.FromStrict {
				op = " > "
			}
			parts = append(parts, f+op+c.param(*r.From))
		}
		if r.To != nil {
			parts = append(parts, f+" < "+c.param(*r.To))
		}
		return strings.Join(parts, " && "), nil
	}
	return "", fmt.Errorf("%w: unknown operator %q", ErrMalformed, cond.Operator)
}

// ListValue normalizes an "in" operand: JSON arrays pass through, strings are
// split on commas, scalars become one-element lists.
func ListValue(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	case string:
		parts := strings.Split(l, ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}
		return out
	case nil:
		return []any{}
	}
	return []any{v}
}
