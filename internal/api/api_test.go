package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/attachment"
	"github.com/galynx/galynx-server/internal/audit"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/channel"
	"github.com/galynx/galynx-server/internal/ratelimit"
	"github.com/galynx/galynx-server/internal/realtime"
	"github.com/galynx/galynx-server/internal/store"
	"github.com/galynx/galynx-server/internal/user"
	"github.com/galynx/galynx-server/internal/workspace"
)

// testEnv wires the full REST surface against a memory store, mirroring the
// route registration in cmd/galynx.
type testEnv struct {
	app  *fiber.App
	auth *auth.Service
	st   *store.Store
	hub  *realtime.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, "memory", "", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	authSvc := auth.NewService(st, "test-secret", 15*time.Minute, 30*24*time.Hour, "owner@galynx.local", "ChangeMe123!", zerolog.Nop())
	if err := authSvc.EnsureBootstrapSeed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	channels := channel.NewService(st, authSvc.BootstrapWorkspaceID(), authSvc.BootstrapUserID(), zerolog.Nop())
	channels.EnsureDefaultChannel(ctx)

	auditSvc := audit.NewService(st, zerolog.Nop())
	users := user.NewService(st)
	workspaces := workspace.NewService(st)
	limits := ratelimit.NewService()
	hub := realtime.NewHub(zerolog.Nop())
	attachments := attachment.NewService(st, channels, nil, zerolog.Nop())

	app := fiber.New()
	requireAuth := auth.RequireAuth(authSvc)

	health := NewHealthHandler(st)
	app.Get("/api/v1/health", health.Health)
	app.Get("/api/v1/ready", health.Ready)

	authHandler := NewAuthHandler(authSvc, auditSvc, limits, zerolog.Nop())
	app.Post("/api/v1/auth/login", authHandler.Login)
	app.Post("/api/v1/auth/refresh", authHandler.Refresh)
	app.Post("/api/v1/auth/logout", requireAuth, authHandler.Logout)
	app.Get("/api/v1/me", requireAuth, authHandler.Me)

	userHandler := NewUserHandler(users, auditSvc, zerolog.Nop())
	app.Get("/api/v1/users", requireAuth, userHandler.List)
	app.Post("/api/v1/users", requireAuth, userHandler.Create)

	workspaceHandler := NewWorkspaceHandler(workspaces, st, auditSvc, zerolog.Nop())
	app.Get("/api/v1/workspaces", requireAuth, workspaceHandler.List)
	app.Post("/api/v1/workspaces", requireAuth, workspaceHandler.Create)
	app.Get("/api/v1/workspaces/:id/members", requireAuth, workspaceHandler.ListMembers)
	app.Post("/api/v1/workspaces/:id/members", requireAuth, workspaceHandler.OnboardMember)

	channelHandler := NewChannelHandler(channels, auditSvc, hub, zerolog.Nop())
	app.Get("/api/v1/channels", requireAuth, channelHandler.List)
	app.Post("/api/v1/channels", requireAuth, channelHandler.Create)
	app.Delete("/api/v1/channels/:id", requireAuth, channelHandler.Delete)
	app.Get("/api/v1/channels/:id/members", requireAuth, channelHandler.ListMembers)
	app.Post("/api/v1/channels/:id/members", requireAuth, channelHandler.AddMember)
	app.Delete("/api/v1/channels/:id/members/:userID", requireAuth, channelHandler.RemoveMember)

	messageHandler := NewMessageHandler(channels, auditSvc, hub, zerolog.Nop())
	app.Get("/api/v1/channels/:id/messages", requireAuth, messageHandler.List)
	app.Post("/api/v1/channels/:id/messages", requireAuth, messageHandler.Create)
	app.Patch("/api/v1/messages/:id", requireAuth, messageHandler.Update)
	app.Delete("/api/v1/messages/:id", requireAuth, messageHandler.Delete)

	threadHandler := NewThreadHandler(channels, auditSvc, hub, zerolog.Nop())
	app.Get("/api/v1/threads/:rootID", requireAuth, threadHandler.Summary)
	app.Get("/api/v1/threads/:rootID/replies", requireAuth, threadHandler.ListReplies)
	app.Post("/api/v1/threads/:rootID/replies", requireAuth, threadHandler.CreateReply)

	attachmentHandler := NewAttachmentHandler(attachments, auditSvc, zerolog.Nop())
	app.Post("/api/v1/attachments/presign", requireAuth, attachmentHandler.Presign)
	app.Post("/api/v1/attachments/commit", requireAuth, attachmentHandler.Commit)
	app.Get("/api/v1/attachments/:id", requireAuth, attachmentHandler.Get)

	auditHandler := NewAuditHandler(auditSvc, zerolog.Nop())
	app.Get("/api/v1/audit", requireAuth, auditHandler.List)

	return &testEnv{app: app, auth: authSvc, st: st, hub: hub}
}

// request executes an HTTP request against the test app. A non-empty token is
// sent as a Bearer Authorization header; a non-nil body is JSON-encoded.
func (e *testEnv) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test(%s %s): %v", method, path, err)
	}
	return resp
}

// ownerToken logs in as the bootstrap owner and returns the access token.
func (e *testEnv) ownerToken(t *testing.T) string {
	t.Helper()
	tokens, err := e.auth.Login(context.Background(), "owner@galynx.local", "ChangeMe123!")
	if err != nil {
		t.Fatalf("owner login: %v", err)
	}
	return tokens.AccessToken
}

// decodeJSON reads and decodes a response body.
func decodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode body: %v\nraw: %s", err, raw)
	}
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, want, raw)
	}
}
