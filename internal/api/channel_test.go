package api

import (
	"net/http"
	"testing"

	"github.com/galynx/galynx-server/internal/audit"
	"github.com/galynx/galynx-server/internal/channel"
	"github.com/galynx/galynx-server/internal/httputil"
	"github.com/galynx/galynx-server/internal/realtime"
	"github.com/galynx/galynx-server/internal/store"
)

func TestChannelLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.ownerToken(t)

	sub := env.hub.Subscribe(env.auth.BootstrapWorkspaceID())
	defer sub.Close()

	resp := env.request(t, http.MethodPost, "/api/v1/channels", token, map[string]any{
		"name":       "Engineering",
		"is_private": false,
	})
	requireStatus(t, resp, http.StatusCreated)

	var created store.Channel
	decodeJSON(t, resp, &created)
	if created.Name != "engineering" {
		t.Fatalf("expected normalized name, got %q", created.Name)
	}

	select {
	case ev := <-sub.Events():
		if ev.EventType != realtime.EventChannelCreated {
			t.Fatalf("expected CHANNEL_CREATED broadcast, got %s", ev.EventType)
		}
		if ev.ChannelID == nil || *ev.ChannelID != created.ID {
			t.Fatalf("expected event scoped to new channel, got %v", ev.ChannelID)
		}
	default:
		t.Fatalf("expected a broadcast event")
	}

	// The default seed channel plus the new one.
	resp = env.request(t, http.MethodGet, "/api/v1/channels", token, nil)
	requireStatus(t, resp, http.StatusOK)
	var listed []store.Channel
	decodeJSON(t, resp, &listed)
	if len(listed) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(listed))
	}

	resp = env.request(t, http.MethodDelete, "/api/v1/channels/"+created.ID.String(), token, nil)
	requireStatus(t, resp, http.StatusNoContent)
	_ = resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/api/v1/channels", token, nil)
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &listed)
	if len(listed) != 1 {
		t.Fatalf("expected channel removed from listing, got %d", len(listed))
	}
}

func TestCreateChannelRequiresAdmin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ownerToken := env.ownerToken(t)

	// Onboard a plain member and log in as them.
	resp := env.request(t, http.MethodPost, "/api/v1/users", ownerToken, map[string]any{
		"email":    "member@galynx.local",
		"name":     "Member",
		"password": "password123",
		"role":     "member",
	})
	requireStatus(t, resp, http.StatusCreated)
	_ = resp.Body.Close()

	resp = env.request(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "member@galynx.local",
		"password": "password123",
	})
	requireStatus(t, resp, http.StatusOK)
	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, resp, &tokens)

	resp = env.request(t, http.MethodPost, "/api/v1/channels", tokens.AccessToken, map[string]any{
		"name": "rogue",
	})
	requireStatus(t, resp, http.StatusUnauthorized)

	var body httputil.ErrorResponse
	decodeJSON(t, resp, &body)
	if body.Message != "you do not have permission to manage channels" {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestMessageLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.ownerToken(t)

	resp := env.request(t, http.MethodPost, "/api/v1/channels", token, map[string]any{"name": "updates"})
	requireStatus(t, resp, http.StatusCreated)
	var ch store.Channel
	decodeJSON(t, resp, &ch)

	resp = env.request(t, http.MethodPost, "/api/v1/channels/"+ch.ID.String()+"/messages", token, map[string]any{
		"body_md": "hello world",
	})
	requireStatus(t, resp, http.StatusCreated)
	var msg store.Message
	decodeJSON(t, resp, &msg)
	if msg.BodyMD != "hello world" || msg.ChannelID != ch.ID {
		t.Fatalf("unexpected message %+v", msg)
	}

	resp = env.request(t, http.MethodPatch, "/api/v1/messages/"+msg.ID.String(), token, map[string]any{
		"body_md": "hello, edited",
	})
	requireStatus(t, resp, http.StatusOK)
	var edited store.Message
	decodeJSON(t, resp, &edited)
	if edited.BodyMD != "hello, edited" || edited.EditedAt == nil {
		t.Fatalf("expected edit to stick, got %+v", edited)
	}

	resp = env.request(t, http.MethodDelete, "/api/v1/messages/"+msg.ID.String(), token, nil)
	requireStatus(t, resp, http.StatusNoContent)
	_ = resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/api/v1/channels/"+ch.ID.String()+"/messages", token, nil)
	requireStatus(t, resp, http.StatusOK)
	var page channel.MessagePage
	decodeJSON(t, resp, &page)
	if len(page.Items) != 0 {
		t.Fatalf("expected deleted message hidden from listing, got %d items", len(page.Items))
	}
}

func TestMessagePagination(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.ownerToken(t)

	resp := env.request(t, http.MethodPost, "/api/v1/channels", token, map[string]any{"name": "history"})
	requireStatus(t, resp, http.StatusCreated)
	var ch store.Channel
	decodeJSON(t, resp, &ch)

	for _, body := range []string{"one", "two", "three"} {
		resp = env.request(t, http.MethodPost, "/api/v1/channels/"+ch.ID.String()+"/messages", token, map[string]any{
			"body_md": body,
		})
		requireStatus(t, resp, http.StatusCreated)
		_ = resp.Body.Close()
	}

	resp = env.request(t, http.MethodGet, "/api/v1/channels/"+ch.ID.String()+"/messages?limit=2", token, nil)
	requireStatus(t, resp, http.StatusOK)
	var page channel.MessagePage
	decodeJSON(t, resp, &page)
	if len(page.Items) != 2 || page.NextCursor == nil {
		t.Fatalf("expected first page of 2 with cursor, got %d items", len(page.Items))
	}
	if page.Items[0].BodyMD != "three" || page.Items[1].BodyMD != "two" {
		t.Fatalf("expected newest-first order, got %q %q", page.Items[0].BodyMD, page.Items[1].BodyMD)
	}

	resp = env.request(t, http.MethodGet, "/api/v1/channels/"+ch.ID.String()+"/messages?limit=2&cursor="+*page.NextCursor, token, nil)
	requireStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &page)
	if len(page.Items) != 1 || page.NextCursor != nil {
		t.Fatalf("expected final page of 1, got %d items", len(page.Items))
	}
	if page.Items[0].BodyMD != "one" {
		t.Fatalf("expected oldest message last, got %q", page.Items[0].BodyMD)
	}
}

func TestThreadReplies(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.ownerToken(t)

	resp := env.request(t, http.MethodPost, "/api/v1/channels", token, map[string]any{"name": "threads"})
	requireStatus(t, resp, http.StatusCreated)
	var ch store.Channel
	decodeJSON(t, resp, &ch)

	resp = env.request(t, http.MethodPost, "/api/v1/channels/"+ch.ID.String()+"/messages", token, map[string]any{
		"body_md": "root",
	})
	requireStatus(t, resp, http.StatusCreated)
	var root store.Message
	decodeJSON(t, resp, &root)

	resp = env.request(t, http.MethodPost, "/api/v1/threads/"+root.ID.String()+"/replies", token, map[string]any{
		"body_md": "first reply",
	})
	requireStatus(t, resp, http.StatusCreated)
	var reply store.Message
	decodeJSON(t, resp, &reply)
	if reply.ThreadRootID == nil || *reply.ThreadRootID != root.ID {
		t.Fatalf("expected reply bound to root, got %+v", reply)
	}

	// Replying to a reply is rejected; threads stay flat.
	resp = env.request(t, http.MethodPost, "/api/v1/threads/"+reply.ID.String()+"/replies", token, map[string]any{
		"body_md": "nested",
	})
	requireStatus(t, resp, http.StatusNotFound)
	_ = resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/api/v1/threads/"+root.ID.String(), token, nil)
	requireStatus(t, resp, http.StatusOK)
	var summary channel.ThreadSummary
	decodeJSON(t, resp, &summary)
	if summary.ReplyCount != 1 || summary.RootMessage.ID != root.ID {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	token := env.ownerToken(t)

	resp := env.request(t, http.MethodPost, "/api/v1/channels", token, map[string]any{"name": "audited"})
	requireStatus(t, resp, http.StatusCreated)
	_ = resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/api/v1/audit", token, nil)
	requireStatus(t, resp, http.StatusOK)
	var page audit.Page
	decodeJSON(t, resp, &page)

	actions := make(map[string]bool)
	for _, entry := range page.Items {
		actions[entry.Action] = true
	}
	if !actions["CHANNEL_CREATED"] {
		t.Fatalf("expected CHANNEL_CREATED in audit trail, got %v", actions)
	}
}
