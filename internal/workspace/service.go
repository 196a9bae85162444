// Package workspace manages workspaces and their memberships.
package workspace

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/store"
)

// Workspace is a workspace as seen by one of its members.
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      auth.Role `json:"role"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt int64     `json:"created_at"`
}

// Member is one workspace membership with the account it belongs to.
type Member struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Role   auth.Role `json:"role"`
}

// Service creates workspaces and onboards members.
type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// ListForUser returns every workspace the user belongs to.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Workspace, error) {
	memberships := s.store.ListUserMemberships(ctx, userID)
	sort.Slice(memberships, func(i, j int) bool {
		return strings.Compare(memberships[i].WorkspaceID.String(), memberships[j].WorkspaceID.String()) < 0
	})

	items := make([]Workspace, 0, len(memberships))
	for _, m := range memberships {
		ws, ok := s.store.GetWorkspace(ctx, m.WorkspaceID)
		if !ok {
			continue
		}
		role, err := auth.ParseRole(m.Role)
		if err != nil {
			return nil, err
		}
		items = append(items, Workspace{
			ID:        ws.ID,
			Name:      ws.Name,
			Role:      role,
			CreatedBy: ws.CreatedBy,
			CreatedAt: ws.CreatedAt,
		})
	}
	return items, nil
}

// Create makes a new workspace owned by the caller.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, name string) (Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Workspace{}, apperr.BadRequest("workspace name is required")
	}

	ws := store.Workspace{
		ID:        uuid.New(),
		Name:      name,
		CreatedBy: ownerID,
		CreatedAt: time.Now().UnixMilli(),
	}
	s.store.PutWorkspace(ctx, ws)
	s.store.PutMembershipRole(ctx, ws.ID, ownerID, string(auth.RoleOwner))

	return Workspace{
		ID:        ws.ID,
		Name:      ws.Name,
		Role:      auth.RoleOwner,
		CreatedBy: ownerID,
		CreatedAt: ws.CreatedAt,
	}, nil
}

// ListMembers returns the workspace's members ordered by email.
func (s *Service) ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]Member, error) {
	memberships := s.store.ListWorkspaceMemberships(ctx, workspaceID)

	members := make([]Member, 0, len(memberships))
	for _, m := range memberships {
		account, ok := s.store.GetAuthUserByID(ctx, m.UserID)
		if !ok {
			continue
		}
		role, err := auth.ParseRole(m.Role)
		if err != nil {
			return nil, err
		}
		members = append(members, Member{
			UserID: account.ID,
			Email:  account.Email,
			Name:   account.Name,
			Role:   role,
		})
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].Email != members[j].Email {
			return members[i].Email < members[j].Email
		}
		return strings.Compare(members[i].UserID.String(), members[j].UserID.String()) < 0
	})
	return members, nil
}

// OnboardMember attaches an account to the workspace, creating the account
// first when the email is new. Onboarding an existing member updates their
// role.
func (s *Service) OnboardMember(ctx context.Context, workspaceID uuid.UUID, email, name, password string, role auth.Role) (Member, error) {
	if role == auth.RoleOwner {
		return Member{}, apperr.BadRequest("cannot onboard owner users via api")
	}
	if role != auth.RoleAdmin && role != auth.RoleMember {
		return Member{}, apperr.BadRequest("invalid role")
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Member{}, apperr.BadRequest("email is required")
	}

	account, exists := s.store.GetAuthUserByEmail(ctx, email)
	if !exists {
		name = strings.TrimSpace(name)
		password = strings.TrimSpace(password)
		if name == "" || password == "" {
			return Member{}, apperr.BadRequest("name and password are required for new users")
		}
		if len(password) < 8 {
			return Member{}, apperr.BadRequest("password must have at least 8 characters")
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return Member{}, apperr.Internal("failed to hash password")
		}
		account = store.AuthUser{
			ID:           uuid.New(),
			Email:        email,
			Name:         name,
			PasswordHash: hash,
		}
		s.store.PutAuthUser(ctx, account)
	}

	s.store.PutMembershipRole(ctx, workspaceID, account.ID, string(role))

	return Member{
		UserID: account.ID,
		Email:  account.Email,
		Name:   account.Name,
		Role:   role,
	}, nil
}
