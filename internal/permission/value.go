package permission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type valueKind uint8

const (
	kindDenied valueKind = iota
	kindAllowed
	kindRestricted
)

// Value is a permission grant: everyone, no one, or a fixed set of
// principals. The zero Value denies.
type Value struct {
	kind valueKind
	ids  map[int64]struct{}
}

func AllAllowed() Value { return Value{kind: kindAllowed} }

func AllDenied() Value { return Value{kind: kindDenied} }

// RestrictedTo grants only the listed principals. An empty list grants no one
// but stays distinguishable from AllDenied.
func RestrictedTo(ids ...int64) Value {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Value{kind: kindRestricted, ids: set}
}

func (v Value) IsAllAllowed() bool { return v.kind == kindAllowed }
func (v Value) IsAllDenied() bool  { return v.kind == kindDenied }
func (v Value) IsRestricted() bool { return v.kind == kindRestricted }

// Allows reports whether principal is granted. known is false when the
// caller has no usable principal, which only passes an all-allowed grant.
func (v Value) Allows(principal int64, known bool) bool {
	switch v.kind {
	case kindAllowed:
		return true
	case kindRestricted:
		if !known {
			return false
		}
		_, ok := v.ids[principal]
		return ok
	default:
		return false
	}
}

// IDs returns the granted principals in ascending order, or nil unless the
// value is restricted.
func (v Value) IDs() []int64 {
	if v.kind != kindRestricted {
		return nil
	}
	out := make([]int64, 0, len(v.ids))
	for id := range v.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (v Value) String() string {
	switch v.kind {
	case kindAllowed:
		return "true"
	case kindRestricted:
		return fmt.Sprint(v.IDs())
	default:
		return "false"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindAllowed:
		return []byte("true"), nil
	case kindRestricted:
		return json.Marshal(v.IDs())
	default:
		return []byte("false"), nil
	}
}

// UnmarshalJSON accepts true, false, null, an id array, or {"roles": [...]}.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*v = AllAllowed()
		return nil
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("null")):
		*v = AllDenied()
		return nil
	case len(data) > 0 && data[0] == '{':
		var wrapped struct {
			Roles json.RawMessage `json:"roles"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return fmt.Errorf("permission value: %w", err)
		}
		if len(wrapped.Roles) == 0 {
			*v = AllDenied()
			return nil
		}
		return v.UnmarshalJSON(wrapped.Roles)
	}

	ids, err := decodeIDs(data)
	if err != nil {
		return fmt.Errorf("permission value: %w", err)
	}
	*v = RestrictedTo(ids...)
	return nil
}

// decodeIDs reads a JSON array of numeric ids; numbers and numeric strings
// are both accepted.
func decodeIDs(data []byte) ([]int64, error) {
	var raw []json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	for _, item := range items {
		switch n := item.(type) {
		case json.Number:
			raw = append(raw, n)
		case string:
			raw = append(raw, json.Number(strings.TrimSpace(n)))
		default:
			return nil, fmt.Errorf("unexpected id %v", item)
		}
	}
	ids := make([]int64, 0, len(raw))
	for _, n := range raw {
		id, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", n)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
