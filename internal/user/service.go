// Package user manages workspace user accounts.
package user

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/store"
)

// User is a workspace-scoped view of an account.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Role        auth.Role `json:"role"`
}

// Service lists and creates accounts inside a workspace.
type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// List returns the workspace's users ordered by email.
func (s *Service) List(ctx context.Context, workspaceID uuid.UUID) ([]User, error) {
	memberships := s.store.ListWorkspaceMemberships(ctx, workspaceID)

	users := make([]User, 0, len(memberships))
	for _, m := range memberships {
		account, ok := s.store.GetAuthUserByID(ctx, m.UserID)
		if !ok {
			continue
		}
		role, err := auth.ParseRole(m.Role)
		if err != nil {
			return nil, err
		}
		users = append(users, User{
			ID:          account.ID,
			Email:       account.Email,
			Name:        account.Name,
			WorkspaceID: workspaceID,
			Role:        role,
		})
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].Email != users[j].Email {
			return users[i].Email < users[j].Email
		}
		return strings.Compare(users[i].ID.String(), users[j].ID.String()) < 0
	})
	return users, nil
}

// Create adds a new account and its membership. Owner accounts can only come
// from the bootstrap seed.
func (s *Service) Create(ctx context.Context, workspaceID uuid.UUID, email, name, password string, role auth.Role) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	password = strings.TrimSpace(password)

	if email == "" || name == "" || password == "" {
		return User{}, apperr.BadRequest("email, name and password are required")
	}
	if len(password) < 8 {
		return User{}, apperr.BadRequest("password must have at least 8 characters")
	}
	if role == auth.RoleOwner {
		return User{}, apperr.BadRequest("cannot create owner users via api")
	}
	if role != auth.RoleAdmin && role != auth.RoleMember {
		return User{}, apperr.BadRequest("invalid role")
	}
	if _, exists := s.store.GetAuthUserByEmail(ctx, email); exists {
		return User{}, apperr.BadRequest("email already exists")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, apperr.Internal("failed to hash password")
	}

	userID := uuid.New()
	s.store.PutAuthUser(ctx, store.AuthUser{
		ID:           userID,
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	})
	s.store.PutMembershipRole(ctx, workspaceID, userID, string(role))

	return User{
		ID:          userID,
		Email:       email,
		Name:        name,
		WorkspaceID: workspaceID,
		Role:        role,
	}, nil
}
