package auth

import (
	"strings"

	"github.com/google/uuid"

	"github.com/galynx/galynx-server/internal/apperr"
)

// Role is a workspace membership role.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole converts a stored role string. An unknown value indicates
// corrupted membership state and surfaces as an internal error.
func ParseRole(value string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "owner":
		return RoleOwner, nil
	case "admin":
		return RoleAdmin, nil
	case "member":
		return RoleMember, nil
	default:
		return "", apperr.Internal("invalid membership role")
	}
}

// CanAdminister reports whether the role may perform admin-gated operations.
func (r Role) CanAdminister() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Context is the resolved identity for one authenticated request or socket.
// The role always comes from a live membership read, never from the token.
type Context struct {
	UserID      uuid.UUID
	WorkspaceID uuid.UUID
	Email       string
	Role        Role
}
