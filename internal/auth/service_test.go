package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(context.Background(), "memory", "", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	svc := NewService(st, "test-secret", 15*time.Minute, 30*24*time.Hour, "owner@galynx.local", "ChangeMe123!", zerolog.Nop())
	if err := svc.EnsureBootstrapSeed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return svc
}

func requireUnauthorized(t *testing.T, err error, message string) {
	t.Helper()
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected app error, got %v", err)
	}
	if appErr.Code != apperr.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %s", appErr.Code)
	}
	if message != "" && appErr.Message != message {
		t.Fatalf("expected message %q, got %q", message, appErr.Message)
	}
}

func TestBootstrapSeedIdempotent(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	userID := svc.BootstrapUserID()
	workspaceID := svc.BootstrapWorkspaceID()

	if err := svc.EnsureBootstrapSeed(context.Background()); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if svc.BootstrapUserID() != userID {
		t.Fatalf("bootstrap user id changed across seeds")
	}
	if svc.BootstrapWorkspaceID() != workspaceID {
		t.Fatalf("bootstrap workspace id changed across seeds")
	}
}

func TestLoginIssuesValidTokens(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	tokens, err := svc.Login(context.Background(), "  Owner@Galynx.LOCAL ", "ChangeMe123!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", tokens)
	}

	authCtx, err := svc.Authenticate(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authCtx.UserID != svc.BootstrapUserID() {
		t.Fatalf("expected bootstrap user, got %s", authCtx.UserID)
	}
	if authCtx.WorkspaceID != svc.BootstrapWorkspaceID() {
		t.Fatalf("expected bootstrap workspace, got %s", authCtx.WorkspaceID)
	}
	if authCtx.Role != RoleOwner {
		t.Fatalf("expected owner role, got %s", authCtx.Role)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)

	_, err := svc.Login(context.Background(), "owner@galynx.local", "wrong-password")
	requireUnauthorized(t, err, "invalid credentials")

	_, err = svc.Login(context.Background(), "nobody@galynx.local", "ChangeMe123!")
	requireUnauthorized(t, err, "invalid credentials")
}

func TestRefreshRotatesToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	first, err := svc.Login(context.Background(), "owner@galynx.local", "ChangeMe123!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}
	if _, err := svc.Authenticate(context.Background(), second.AccessToken); err != nil {
		t.Fatalf("authenticate rotated access token: %v", err)
	}
}

func TestRefreshReuseRevokesDescendant(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	first, err := svc.Login(context.Background(), "owner@galynx.local", "ChangeMe123!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Presenting the already-rotated token is reuse.
	_, err = svc.Refresh(context.Background(), first.RefreshToken)
	requireUnauthorized(t, err, "refresh token reuse detected")

	// The cascade revoked the descendant session too.
	_, err = svc.Refresh(context.Background(), second.RefreshToken)
	requireUnauthorized(t, err, "refresh token reuse detected")
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	_, err := svc.Refresh(context.Background(), "not-a-real-token")
	requireUnauthorized(t, err, "invalid refresh token")
}

func TestLogoutRevokesSessionIdempotently(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	tokens, err := svc.Login(context.Background(), "owner@galynx.local", "ChangeMe123!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(context.Background(), tokens.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := svc.Logout(context.Background(), tokens.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}

	_, err = svc.Refresh(context.Background(), tokens.RefreshToken)
	requireUnauthorized(t, err, "")
}

func TestLogoutRejectsUnknownToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	err := svc.Logout(context.Background(), "never-issued-token")
	requireUnauthorized(t, err, "invalid refresh token")
}

func TestAuthenticateRejectsTamperedToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	tokens, err := svc.Login(context.Background(), "owner@galynx.local", "ChangeMe123!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	_, err = svc.Authenticate(context.Background(), tokens.AccessToken+"x")
	requireUnauthorized(t, err, "invalid access token")
}
