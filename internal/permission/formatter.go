package permission

import (
	"bytes"
	"encoding/json"
)

// LegacyCollection is a collection entry of the pre-roles payload.
type LegacyCollection struct {
	Collection LegacyCRUD              `json:"collection"`
	Actions    map[string]LegacyAction `json:"actions"`
	Scope      *Scope                  `json:"scope"`
}

type LegacyCRUD struct {
	List         bool `json:"list"`
	Show         bool `json:"show"`
	Create       bool `json:"create"`
	Update       bool `json:"update"`
	Delete       bool `json:"delete"`
	Export       bool `json:"export"`
	SearchToEdit bool `json:"searchToEdit"`
}

// LegacyAction grants a smart action to everyone when Users is nil, or only
// to Users otherwise.
type LegacyAction struct {
	Allowed bool    `json:"allowed"`
	Users   userIDs `json:"users"`
}

// userIDs keeps a JSON null apart from an empty array.
type userIDs []int64

func (u *userIDs) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*u = nil
		return nil
	}
	ids, err := decodeIDs(data)
	if err != nil {
		return err
	}
	*u = ids
	return nil
}

// ConvertLegacy upgrades a legacy payload to the current shape. The input is
// not modified.
func ConvertLegacy(legacy map[string]LegacyCollection) map[string]*CollectionPermission {
	out := make(map[string]*CollectionPermission, len(legacy))
	for name, lc := range legacy {
		cp := &CollectionPermission{
			CRUD: CRUDPermission{
				Browse: flag(lc.Collection.List || lc.Collection.SearchToEdit),
				Read:   flag(lc.Collection.Show),
				Add:    flag(lc.Collection.Create),
				Edit:   flag(lc.Collection.Update),
				Delete: flag(lc.Collection.Delete),
				Export: flag(lc.Collection.Export),
			},
			Actions: make(map[string]*ActionPermission, len(lc.Actions)),
			Scope:   lc.Scope,
		}
		for actionName, la := range lc.Actions {
			cp.Actions[actionName] = ConvertLegacyAction(la)
		}
		out[name] = cp
	}
	return out
}

// ConvertLegacyAction maps {allowed, users} to a trigger grant. Legacy
// actions carry no approval workflow, so every other gate denies.
func ConvertLegacyAction(la LegacyAction) *ActionPermission {
	var trigger Value
	switch {
	case !la.Allowed:
		trigger = AllDenied()
	case la.Users == nil:
		trigger = AllAllowed()
	default:
		trigger = RestrictedTo(la.Users...)
	}
	return &ActionPermission{TriggerEnabled: trigger}
}

func flag(b bool) Value {
	if b {
		return AllAllowed()
	}
	return AllDenied()
}

// decodeLegacy parses the data member of a legacy rendering payload.
func decodeLegacy(data json.RawMessage) (map[string]LegacyCollection, error) {
	legacy := make(map[string]LegacyCollection)
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return legacy, nil
	}
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, err
	}
	return legacy, nil
}
