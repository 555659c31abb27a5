package auth

import (
	"strings"
)

type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleEditor  Role = "editor"
	RoleAnalyst Role = "analyst"
)

// Roles lists every assignable role.
var Roles = []Role{RoleUser, RoleAdmin, RoleEditor, RoleAnalyst}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleEditor, RoleAnalyst:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole accepts only the closed set of roles. Surrounding space and case are ignored.
func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}
