package metadata

import (
	"strconv"
	"strings"
)

// UserContext represents the authenticated user, set by auth middleware.
type UserContext struct {
	ID          string   `json:"id"`
	RoleID      int64    `json:"role_id"`
	RenderingID int64    `json:"rendering_id"`
	Roles       []string `json:"roles,omitempty"`
}

// NormalizedID returns the numeric form of the user id used for membership
// tests against user-restricted permissions. ok is false for non-numeric ids.
func (u *UserContext) NormalizedID() (id int64, ok bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(u.ID), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// HasRole checks whether the user has a specific role.
func (u *UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks whether the user has the admin role.
func (u *UserContext) IsAdmin() bool {
	return u.HasRole("admin")
}
