package filter

import "strings"

// DynamicPrefix marks a condition value resolved per user at check time,
// e.g. "$currentUser.team.name".
const DynamicPrefix = "$currentUser"

// Substitute returns a copy of n where every string value starting with
// DynamicPrefix is replaced by its binding in values. Unbound placeholders are
// left untouched.
func Substitute(n Node, values map[string]any) Node {
	switch v := n.(type) {
	case *Condition:
		c := *v
		if s, ok := c.Value.(string); ok && strings.HasPrefix(s, DynamicPrefix) {
			if bound, ok := values[s]; ok {
				c.Value = bound
			}
		}
		return &c
	case *Aggregation:
		agg := &Aggregation{Aggregator: v.Aggregator, Conditions: make([]Node, len(v.Conditions))}
		for i, child := range v.Conditions {
			agg.Conditions[i] = Substitute(child, values)
		}
		return agg
	}
	return n
}
