package filter

import "fmt"

// Selector is the set of records a caller intends to act on: either an
// explicit id list, or every record except ExcludedIDs.
type Selector struct {
	IDs         []string
	AllRecords  bool
	ExcludedIDs []string
}

// Explicit returns the de-duplicated explicit id list.
func (s Selector) Explicit() []string {
	seen := make(map[string]struct{}, len(s.IDs))
	out := make([]string, 0, len(s.IDs))
	for _, id := range s.IDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Values converts ids to the []any form expected by query builders.
func Values(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// IDStrings normalizes a decoded JSON id list (strings or numbers) to strings.
func IDStrings(v any) []string {
	switch ids := v.(type) {
	case nil:
		return nil
	case []string:
		return ids
	case []any:
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, idString(id))
		}
		return out
	default:
		return []string{idString(v)}
	}
}

func idString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%v", n)
	default:
		return fmt.Sprintf("%v", v)
	}
}
