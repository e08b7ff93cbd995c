package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

const (
	AggregatorAnd = "and"
	AggregatorOr  = "or"
)

// Node is one element of a filter tree: a *Condition leaf or an *Aggregation.
type Node interface {
	node()
}

// Condition compares one field of a record against a value.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Aggregation joins child nodes with "and" or "or".
type Aggregation struct {
	Aggregator string `json:"aggregator"`
	Conditions []Node `json:"conditions"`
}

func (*Condition) node()   {}
func (*Aggregation) node() {}

var ErrMalformed = errors.New("malformed filter")

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var knownOperators = map[string]bool{
	"equal":           true,
	"not_equal":       true,
	"greater_than":    true,
	"less_than":       true,
	"in":              true,
	"not_in":          true,
	"present":         true,
	"blank":           true,
	"contains":        true,
	"not_contains":    true,
	"starts_with":     true,
	"ends_with":       true,
	"before":          true,
	"after":           true,
	"today":           true,
	"yesterday":       true,
	"past":            true,
	"future":          true,
	"previous_x_days": true,
}

// ValidIdentifier reports whether s can be used verbatim as a column or table name.
func ValidIdentifier(s string) bool {
	return fieldPattern.MatchString(s)
}

// Filter wraps a Node so it can be embedded in JSON documents. A JSON null
// decodes to an empty Filter.
type Filter struct {
	Root Node
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	n, err := Parse(data)
	if err != nil {
		return err
	}
	f.Root = n
	return nil
}

func (f Filter) MarshalJSON() ([]byte, error) {
	if f.Root == nil {
		return []byte("null"), nil
	}
	return json.Marshal(f.Root)
}

// IsZero reports whether the filter has no root node.
func (f Filter) IsZero() bool { return f.Root == nil }

type rawNode struct {
	Aggregator string            `json:"aggregator"`
	Conditions []json.RawMessage `json:"conditions"`
	Field      string            `json:"field"`
	Operator   string            `json:"operator"`
	Value      any               `json:"value"`
}

// Parse decodes a JSON filter tree. "null" and empty input yield a nil Node.
func Parse(data []byte) (Node, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Aggregator != "" {
		agg := &Aggregation{Aggregator: strings.ToLower(raw.Aggregator)}
		for _, c := range raw.Conditions {
			child, err := Parse(c)
			if err != nil {
				return nil, err
			}
			if child == nil {
				return nil, fmt.Errorf("%w: null condition in %s", ErrMalformed, agg.Aggregator)
			}
			agg.Conditions = append(agg.Conditions, child)
		}
		return agg, nil
	}
	return &Condition{
		Field:    raw.Field,
		Operator: strings.ToLower(raw.Operator),
		Value:    raw.Value,
	}, nil
}

// FromAny converts an already-decoded JSON value (map[string]any) into a Node.
func FromAny(v any) (Node, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return Parse([]byte(s))
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Parse(data)
}

// Validate checks that every aggregator, operator and field in the tree is
// supported. hasField may be nil, in which case only the field syntax is checked.
func Validate(n Node, hasField func(string) bool) error {
	switch v := n.(type) {
	case nil:
		return nil
	case *Aggregation:
		if v.Aggregator != AggregatorAnd && v.Aggregator != AggregatorOr {
			return fmt.Errorf("%w: unknown aggregator %q", ErrMalformed, v.Aggregator)
		}
		if len(v.Conditions) == 0 {
			return fmt.Errorf("%w: empty %s aggregator", ErrMalformed, v.Aggregator)
		}
		for _, c := range v.Conditions {
			if err := Validate(c, hasField); err != nil {
				return err
			}
		}
		return nil
	case *Condition:
		if strings.Contains(v.Field, ":") {
			return fmt.Errorf("%w: relation field %q is not supported", ErrMalformed, v.Field)
		}
		if !fieldPattern.MatchString(v.Field) {
			return fmt.Errorf("%w: invalid field %q", ErrMalformed, v.Field)
		}
		if hasField != nil && !hasField(v.Field) {
			return fmt.Errorf("%w: unknown field %q", ErrMalformed, v.Field)
		}
		if !knownOperators[v.Operator] {
			return fmt.Errorf("%w: unknown operator %q", ErrMalformed, v.Operator)
		}
		return nil
	default:
		return fmt.Errorf("%w: unexpected node %T", ErrMalformed, n)
	}
}

// Equal reports whether two trees are structurally identical. Numeric values
// are compared by their JSON representation so 1 and 1.0 match.
func Equal(a, b Node) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case *Condition:
		bv, ok := b.(*Condition)
		if !ok {
			return false
		}
		return av.Field == bv.Field && av.Operator == bv.Operator && valuesEqual(av.Value, bv.Value)
	case *Aggregation:
		bv, ok := b.(*Aggregation)
		if !ok || av.Aggregator != bv.Aggregator || len(av.Conditions) != len(bv.Conditions) {
			return false
		}
		for i := range av.Conditions {
			if !Equal(av.Conditions[i], bv.Conditions[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func valuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

// Leaves returns the leaf conditions of n in depth-first order.
func Leaves(n Node) []*Condition {
	switch v := n.(type) {
	case *Condition:
		return []*Condition{v}
	case *Aggregation:
		var out []*Condition
		for _, c := range v.Conditions {
			out = append(out, Leaves(c)...)
		}
		return out
	}
	return nil
}
