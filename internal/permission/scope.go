package permission

import "permission-gate/internal/filter"

// Scope restricts the records a user may list. Filter values prefixed with
// $currentUser are bound per user from DynamicScopesValues.
type Scope struct {
	Filter              filter.Filter `json:"filter"`
	DynamicScopesValues DynamicValues `json:"dynamicScopesValues"`
}

type DynamicValues struct {
	Users map[string]map[string]any `json:"users"`
}

// FilterFor returns the scope filter with userID's dynamic values bound.
func (s *Scope) FilterFor(userID string) filter.Node {
	if s == nil || s.Filter.Root == nil {
		return nil
	}
	return filter.Substitute(s.Filter.Root, s.DynamicScopesValues.Users[userID])
}

// Allows reports whether a list request filtered by requested stays inside
// the scope: requested equals the bound scope filter, or is an "and" that
// contains it. An "and" scope is contained when every one of its conditions
// appears in requested.
func (s *Scope) Allows(userID string, requested filter.Node) bool {
	scope := s.FilterFor(userID)
	if scope == nil {
		return true
	}
	if requested == nil {
		return false
	}
	if filter.Equal(requested, scope) {
		return true
	}

	agg, ok := requested.(*filter.Aggregation)
	if !ok || agg.Aggregator != filter.AggregatorAnd {
		return false
	}
	if scopeAgg, ok := scope.(*filter.Aggregation); ok && scopeAgg.Aggregator == filter.AggregatorAnd {
		for _, want := range scopeAgg.Conditions {
			if !containsNode(agg.Conditions, want) {
				return false
			}
		}
		return true
	}
	return containsNode(agg.Conditions, scope)
}

func containsNode(nodes []filter.Node, want filter.Node) bool {
	for _, n := range nodes {
		if filter.Equal(n, want) {
			return true
		}
	}
	return false
}
