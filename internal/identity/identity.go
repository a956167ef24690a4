// Package identity exposes the current reviewer's id and role set.
// The values come from configuration and are read-only; the permission
// evaluator is the only consumer that interprets roles.
package identity

import (
	"strings"

	"triage/internal/config"
)

// Role names recognized by the permission evaluator.
const (
	RoleReviewer   = "reviewer"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// User identifies the reviewer this process acts as.
type User struct {
	ID    string
	Roles []string
}

// FromConfig builds the current user from configuration.
func FromConfig(cfg *config.Config) User {
	if cfg == nil {
		return User{}
	}
	roles := make([]string, len(cfg.Identity.Roles))
	copy(roles, cfg.Identity.Roles)
	return User{ID: cfg.Identity.UserID, Roles: roles}
}

// HasRole reports whether the user carries the named role.
func (u User) HasRole(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user may bypass queue assignee checks.
func (u User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}
