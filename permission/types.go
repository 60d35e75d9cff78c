package permission

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Permission is an immutable catalog entry. Code is unique and
// dot-delimited ("user.create"); Resource and Action are its two halves.
type Permission struct {
	Code     string `json:"code"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// NewPermission builds a catalog entry from a dot-delimited code.
func NewPermission(code string) Permission {
	resource, action, _ := strings.Cut(code, ".")
	return Permission{Code: code, Resource: resource, Action: action}
}

// Role is a named grant bundle. System-protected roles cannot be deleted
// by administrative tooling.
type Role struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsSystem bool   `json:"is_system"`
}

// RoleStore is the role/grant relation consulted by the resolver. It is
// implemented elsewhere (pgstore in this module, or any other backend).
type RoleStore interface {
	// GetUserRoles returns the roles assigned to userID. An empty slice
	// means the user holds no roles.
	GetUserRoles(ctx context.Context, userID string) ([]Role, error)
	// HasPermission reports whether (roleID, code) exists in the grant
	// relation.
	HasPermission(ctx context.Context, roleID, code string) (bool, error)
}

// Identity is the authenticated caller as seen by the resolver: a subject
// id and the role names carried in its claims. It is issuer-agnostic.
type Identity struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the identity's claims carry the named role.
func (id Identity) HasRole(name string) bool {
	for _, r := range id.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// IdentityFromClaims extracts an Identity from JWT claims. The subject
// comes from "sub"; roles from a "roles" array claim or a single "role"
// string claim, whichever is present.
func IdentityFromClaims(claims jwt.MapClaims) Identity {
	var id Identity

	if sub, err := claims.GetSubject(); err == nil {
		id.Subject = sub
	}

	switch roles := claims["roles"].(type) {
	case []interface{}:
		for _, r := range roles {
			if s, ok := r.(string); ok && s != "" {
				id.Roles = append(id.Roles, s)
			}
		}
	case []string:
		id.Roles = append(id.Roles, roles...)
	case string:
		if roles != "" {
			id.Roles = append(id.Roles, roles)
		}
	}
	if len(id.Roles) == 0 {
		if role, ok := claims["role"].(string); ok && role != "" {
			id.Roles = append(id.Roles, role)
		}
	}
	return id
}
