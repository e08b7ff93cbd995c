package permission

import (
	"time"

	"permission-gate/internal/filter"
	"permission-gate/internal/metadata"
)

// Kind names a permission checked through the cache.
type Kind string

const (
	Browse  Kind = "browse"
	Read    Kind = "read"
	Edit    Kind = "edit"
	Add     Kind = "add"
	Delete  Kind = "delete"
	Export  Kind = "export"
	Actions Kind = "actions"
)

// CRUDKinds lists the record-level permission kinds.
var CRUDKinds = []Kind{Browse, Read, Edit, Add, Delete, Export}

// IsCRUD reports whether k is one of CRUDKinds.
func (k Kind) IsCRUD() bool {
	for _, c := range CRUDKinds {
		if c == k {
			return true
		}
	}
	return false
}

// Snapshot is the permission state of one rendering (or, in roles ACL mode,
// of every rendering) as of FetchedAt. Snapshots are never mutated once
// stored; a fetch replaces them wholesale.
type Snapshot struct {
	Collections       map[string]*CollectionPermission `json:"collections"`
	Charts            map[string]bool                  `json:"charts,omitempty"`
	RolesACLActivated bool                             `json:"roles_acl_activated"`
	FetchedAt         time.Time                        `json:"fetched_at"`
}

// Fresh reports whether the snapshot is younger than ttl. A snapshot without
// a fetch time is never fresh.
func (s *Snapshot) Fresh(now time.Time, ttl time.Duration) bool {
	if s == nil || s.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(s.FetchedAt) < ttl
}

// Principal returns the identity membership tests use for u: the role id in
// roles ACL mode, the numeric user id otherwise.
func (s *Snapshot) Principal(u *metadata.UserContext) (int64, bool) {
	if u == nil {
		return 0, false
	}
	if s.RolesACLActivated {
		return u.RoleID, true
	}
	return u.NormalizedID()
}

// Collection returns the permissions of name, or nil.
func (s *Snapshot) Collection(name string) *CollectionPermission {
	if s == nil {
		return nil
	}
	return s.Collections[name]
}

// Action returns the permissions of a smart action, or nil.
func (s *Snapshot) Action(collection, action string) *ActionPermission {
	cp := s.Collection(collection)
	if cp == nil {
		return nil
	}
	return cp.Actions[action]
}

// CollectionPermission is the current-shape permission entry of a collection.
type CollectionPermission struct {
	CRUD    CRUDPermission               `json:"collection"`
	Actions map[string]*ActionPermission `json:"actions"`
	Scope   *Scope                       `json:"scope,omitempty"`
}

type CRUDPermission struct {
	Browse Value `json:"browseEnabled"`
	Read   Value `json:"readEnabled"`
	Edit   Value `json:"editEnabled"`
	Add    Value `json:"addEnabled"`
	Delete Value `json:"deleteEnabled"`
	Export Value `json:"exportEnabled"`
}

// Flag returns the grant for a CRUD kind. Unknown kinds deny.
func (c CRUDPermission) Flag(k Kind) Value {
	switch k {
	case Browse:
		return c.Browse
	case Read:
		return c.Read
	case Edit:
		return c.Edit
	case Add:
		return c.Add
	case Delete:
		return c.Delete
	case Export:
		return c.Export
	}
	return AllDenied()
}

// ActionPermission gates one smart action.
type ActionPermission struct {
	TriggerEnabled      Value `json:"triggerEnabled"`
	ApprovalRequired    Value `json:"approvalRequired"`
	UserApprovalEnabled Value `json:"userApprovalEnabled"`
	SelfApprovalEnabled Value `json:"selfApprovalEnabled"`

	TriggerConditions          []ConditionGroup `json:"triggerConditions,omitempty"`
	ApprovalRequiredConditions []ConditionGroup `json:"approvalRequiredConditions,omitempty"`
	UserApprovalConditions     []ConditionGroup `json:"userApprovalConditions,omitempty"`
}

// ConditionGroup holds one filter template of a condition list.
type ConditionGroup struct {
	Filter filter.Filter `json:"filter"`
}

// FirstCondition returns the filter of the first group. Only the first group
// of a list is ever evaluated; ok is false for an empty list.
func FirstCondition(groups []ConditionGroup) (n filter.Node, ok bool) {
	if len(groups) == 0 {
		return nil, false
	}
	return groups[0].Filter.Root, true
}
