package api

import (
	"net/http"
	"testing"

	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/httputil"
)

func TestLoginReturnsTokens(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "Owner@Galynx.Local",
		"password": "ChangeMe123!",
	})
	requireStatus(t, resp, http.StatusOK)

	var tokens auth.Tokens
	decodeJSON(t, resp, &tokens)
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", tokens)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "owner@galynx.local",
		"password": "wrong-password",
	})
	requireStatus(t, resp, http.StatusUnauthorized)

	var body httputil.ErrorResponse
	decodeJSON(t, resp, &body)
	if body.Error != "unauthorized" || body.Message != "invalid credentials" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestLoginValidatesBody(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "owner@galynx.local",
	})
	requireStatus(t, resp, http.StatusBadRequest)

	var body httputil.ErrorResponse
	decodeJSON(t, resp, &body)
	if body.Message != "email and password are required" {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "owner@galynx.local",
		"password": "ChangeMe123!",
	})
	requireStatus(t, resp, http.StatusOK)
	var first auth.Tokens
	decodeJSON(t, resp, &first)

	resp = env.request(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": first.RefreshToken,
	})
	requireStatus(t, resp, http.StatusOK)
	var second auth.Tokens
	decodeJSON(t, resp, &second)
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("expected rotated refresh token")
	}

	// The consumed token is now invalid.
	resp = env.request(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": first.RefreshToken,
	})
	requireStatus(t, resp, http.StatusUnauthorized)
	_ = resp.Body.Close()
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "owner@galynx.local",
		"password": "ChangeMe123!",
	})
	requireStatus(t, resp, http.StatusOK)
	var tokens auth.Tokens
	decodeJSON(t, resp, &tokens)

	resp = env.request(t, http.MethodPost, "/api/v1/auth/logout", tokens.AccessToken, map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	requireStatus(t, resp, http.StatusNoContent)
	_ = resp.Body.Close()

	resp = env.request(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	requireStatus(t, resp, http.StatusUnauthorized)
	_ = resp.Body.Close()
}

func TestLogoutValidatesRefreshToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.ownerToken(t)

	resp := env.request(t, http.MethodPost, "/api/v1/auth/logout", token, map[string]string{})
	requireStatus(t, resp, http.StatusBadRequest)
	var body httputil.ErrorResponse
	decodeJSON(t, resp, &body)
	if body.Message != "refresh_token is required" {
		t.Fatalf("unexpected message %q", body.Message)
	}

	resp = env.request(t, http.MethodPost, "/api/v1/auth/logout", token, map[string]string{
		"refresh_token": "never-issued-token",
	})
	requireStatus(t, resp, http.StatusUnauthorized)
	decodeJSON(t, resp, &body)
	if body.Message != "invalid refresh token" {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestMeReturnsProfile(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.ownerToken(t)

	resp := env.request(t, http.MethodGet, "/api/v1/me", token, nil)
	requireStatus(t, resp, http.StatusOK)

	var me auth.Me
	decodeJSON(t, resp, &me)
	if me.Email != "owner@galynx.local" || me.Role != auth.RoleOwner {
		t.Fatalf("unexpected profile %+v", me)
	}
	if me.WorkspaceID != env.auth.BootstrapWorkspaceID() {
		t.Fatalf("expected bootstrap workspace, got %s", me.WorkspaceID)
	}

	// Unauthenticated access is rejected.
	resp = env.request(t, http.MethodGet, "/api/v1/me", "", nil)
	requireStatus(t, resp, http.StatusUnauthorized)
	_ = resp.Body.Close()
}
