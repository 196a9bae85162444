package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/store"
)

// Tokens is the response body for login and refresh. Expiry timestamps are
// unix seconds.
type Tokens struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	AccessExpiresAt  int64  `json:"access_expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
}

// Service implements login, refresh rotation with reuse detection, logout,
// bearer authentication, and the bootstrap seed.
type Service struct {
	store      *store.Store
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration

	bootstrapEmail       string
	bootstrapPassword    string
	bootstrapUserID      uuid.UUID
	bootstrapWorkspaceID uuid.UUID

	// dummyHash is compared against when the user does not exist so that
	// login timing does not reveal whether an email is registered.
	dummyHash string

	log zerolog.Logger
}

// NewService creates the auth service. Bootstrap ids are derived from the
// bootstrap email so repeat startups agree on them before any storage read.
func NewService(st *store.Store, secret string, accessTTL, refreshTTL time.Duration, bootstrapEmail, bootstrapPassword string, logger zerolog.Logger) *Service {
	email := strings.ToLower(strings.TrimSpace(bootstrapEmail))
	dummyHash, err := HashPassword("galynx-dummy-comparison-input")
	if err != nil {
		dummyHash = ""
	}

	return &Service{
		store:                st,
		secret:               secret,
		accessTTL:            accessTTL,
		refreshTTL:           refreshTTL,
		bootstrapEmail:       email,
		bootstrapPassword:    bootstrapPassword,
		bootstrapUserID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte("galynx:bootstrap:user:"+email)),
		bootstrapWorkspaceID: uuid.NewSHA1(uuid.NameSpaceOID, []byte("galynx:bootstrap:workspace:"+email)),
		dummyHash:            dummyHash,
		log:                  logger.With().Str("component", "auth").Logger(),
	}
}

// BootstrapUserID returns the seeded owner's user id.
func (s *Service) BootstrapUserID() uuid.UUID {
	return s.bootstrapUserID
}

// BootstrapWorkspaceID returns the seeded primary workspace id.
func (s *Service) BootstrapWorkspaceID() uuid.UUID {
	return s.bootstrapWorkspaceID
}

// EnsureBootstrapSeed creates the owner user, the primary workspace, and the
// owner membership if they do not exist yet. It is idempotent: repeat calls
// observe the seed and no-op, keeping the same ids.
func (s *Service) EnsureBootstrapSeed(ctx context.Context) error {
	if existing, ok := s.store.GetAuthUserByEmail(ctx, s.bootstrapEmail); ok {
		s.bootstrapUserID = existing.ID
		if membership, ok := s.store.FindPrimaryMembership(ctx, existing.ID); ok {
			s.bootstrapWorkspaceID = membership.WorkspaceID
		}
		return nil
	}

	hash, err := HashPassword(s.bootstrapPassword)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	s.store.PutAuthUser(ctx, store.AuthUser{
		ID:           s.bootstrapUserID,
		Email:        s.bootstrapEmail,
		Name:         "Workspace Owner",
		PasswordHash: hash,
	})
	s.store.PutWorkspace(ctx, store.Workspace{
		ID:        s.bootstrapWorkspaceID,
		Name:      "galynx",
		CreatedBy: s.bootstrapUserID,
		CreatedAt: now,
	})
	s.store.PutMembershipRole(ctx, s.bootstrapWorkspaceID, s.bootstrapUserID, string(RoleOwner))

	s.log.Info().Str("email", s.bootstrapEmail).Msg("Bootstrap owner seeded")
	return nil
}

// Login verifies credentials and issues a token pair. Unknown users and bad
// passwords produce the same undifferentiated error.
func (s *Service) Login(ctx context.Context, email, password string) (Tokens, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, ok := s.store.GetAuthUserByEmail(ctx, email)
	if !ok {
		_, _ = VerifyPassword(password, s.dummyHash)
		return Tokens{}, apperr.Unauthorized("invalid credentials")
	}

	match, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !match {
		return Tokens{}, apperr.Unauthorized("invalid credentials")
	}

	membership, ok := s.store.FindPrimaryMembership(ctx, user.ID)
	if !ok {
		return Tokens{}, apperr.Unauthorized("invalid credentials")
	}
	role, err := ParseRole(membership.Role)
	if err != nil {
		return Tokens{}, err
	}

	return s.issueTokens(ctx, user, membership.WorkspaceID, role)
}

// Refresh rotates a refresh token. Presenting an already-rotated token is
// treated as reuse: the descendant session is revoked and the call fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	tokenHash := hashRefreshToken(strings.TrimSpace(refreshToken))

	session, ok := s.store.GetRefreshSession(ctx, tokenHash)
	if !ok {
		return Tokens{}, apperr.Unauthorized("invalid refresh token")
	}

	now := time.Now().Unix()
	if session.ExpiresAt <= now {
		return Tokens{}, apperr.Unauthorized("refresh token expired")
	}

	if session.RevokedAt != nil {
		if session.ReplacedByHash != nil {
			replaced := *session.ReplacedByHash
			s.store.UpdateRefreshSession(ctx, replaced, func(rec *store.RefreshSession) {
				if rec.RevokedAt == nil {
					rec.RevokedAt = &now
				}
			})
			s.log.Warn().Str("user_id", session.UserID.String()).Msg("Refresh token reuse detected, descendant session revoked")
		}
		return Tokens{}, apperr.Unauthorized("refresh token reuse detected")
	}

	user, ok := s.store.GetAuthUserByID(ctx, session.UserID)
	if !ok {
		return Tokens{}, apperr.Unauthorized("invalid refresh token")
	}
	membership, ok := s.store.FindPrimaryMembership(ctx, user.ID)
	if !ok {
		return Tokens{}, apperr.Unauthorized("invalid refresh token")
	}
	role, err := ParseRole(membership.Role)
	if err != nil {
		return Tokens{}, err
	}

	newToken, newHash, err := newRefreshToken()
	if err != nil {
		return Tokens{}, apperr.Internal("failed to rotate refresh token")
	}

	s.store.UpdateRefreshSession(ctx, tokenHash, func(rec *store.RefreshSession) {
		rec.RevokedAt = &now
		rec.ReplacedByHash = &newHash
	})

	refreshExpiresAt := time.Now().Add(s.refreshTTL).Unix()
	s.store.PutRefreshSession(ctx, store.RefreshSession{
		TokenHash: newHash,
		UserID:    user.ID,
		ExpiresAt: refreshExpiresAt,
	})

	accessToken, accessExpiresAt, err := NewAccessToken(user.ID, user.Email, membership.WorkspaceID, role, s.secret, s.accessTTL)
	if err != nil {
		return Tokens{}, apperr.Internal("failed to sign access token")
	}

	return Tokens{
		AccessToken:      accessToken,
		RefreshToken:     newToken,
		AccessExpiresAt:  accessExpiresAt.Unix(),
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// Logout revokes the presented refresh session. Revoking an already-revoked
// session succeeds; a token that never had a session is rejected.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	tokenHash := hashRefreshToken(strings.TrimSpace(refreshToken))
	now := time.Now().Unix()
	ok := s.store.UpdateRefreshSession(ctx, tokenHash, func(rec *store.RefreshSession) {
		if rec.RevokedAt == nil {
			rec.RevokedAt = &now
		}
	})
	if !ok {
		return apperr.Unauthorized("invalid refresh token")
	}
	return nil
}

// Authenticate resolves a bearer access token into a request context. The
// membership role is re-read from storage; the token's role claim is
// advisory only.
func (s *Service) Authenticate(ctx context.Context, token string) (Context, error) {
	claims, err := ValidateAccessToken(token, s.secret)
	if err != nil {
		return Context{}, apperr.Unauthorized("invalid access token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Context{}, apperr.Unauthorized("invalid token subject")
	}
	workspaceID, err := uuid.Parse(claims.WorkspaceID)
	if err != nil {
		return Context{}, apperr.Unauthorized("invalid token workspace")
	}

	roleStr, ok := s.store.GetMembershipRole(ctx, workspaceID, userID)
	if !ok {
		return Context{}, apperr.Unauthorized("membership not found")
	}
	role, err := ParseRole(roleStr)
	if err != nil {
		return Context{}, err
	}

	return Context{
		UserID:      userID,
		WorkspaceID: workspaceID,
		Email:       claims.Email,
		Role:        role,
	}, nil
}

// Me is the authenticated caller's profile.
type Me struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Role        Role      `json:"role"`
}

// Me returns the profile behind a request context.
func (s *Service) Me(ctx context.Context, actor Context) (Me, error) {
	user, ok := s.store.GetAuthUserByID(ctx, actor.UserID)
	if !ok {
		return Me{}, apperr.Unauthorized("user not found")
	}
	return Me{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		WorkspaceID: actor.WorkspaceID,
		Role:        actor.Role,
	}, nil
}

// issueTokens mints an access token and a fresh refresh session for a
// successful login.
func (s *Service) issueTokens(ctx context.Context, user store.AuthUser, workspaceID uuid.UUID, role Role) (Tokens, error) {
	accessToken, accessExpiresAt, err := NewAccessToken(user.ID, user.Email, workspaceID, role, s.secret, s.accessTTL)
	if err != nil {
		return Tokens{}, apperr.Internal("failed to sign access token")
	}

	refreshToken, tokenHash, err := newRefreshToken()
	if err != nil {
		return Tokens{}, apperr.Internal("failed to generate refresh token")
	}

	refreshExpiresAt := time.Now().Add(s.refreshTTL).Unix()
	s.store.PutRefreshSession(ctx, store.RefreshSession{
		TokenHash: tokenHash,
		UserID:    user.ID,
		ExpiresAt: refreshExpiresAt,
	})

	return Tokens{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiresAt.Unix(),
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}
