package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/audit"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/channel"
	"github.com/galynx/galynx-server/internal/ratelimit"
	"github.com/galynx/galynx-server/internal/reaction"
	"github.com/galynx/galynx-server/internal/store"
)

type sessionFixture struct {
	session *Session
	actor   auth.Context
	channel store.Channel
	deps    SessionDeps
}

// newSessionFixture builds a session wired to real services over a memory
// store, with no websocket connection. Command replies land on the send
// queue, where the tests read them.
func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, "memory", "", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	workspaceID := uuid.New()
	ownerID := uuid.New()
	st.PutMembershipRole(ctx, workspaceID, ownerID, "owner")

	channels := channel.NewService(st, workspaceID, ownerID, zerolog.Nop())
	actor := auth.Context{UserID: ownerID, WorkspaceID: workspaceID, Role: auth.RoleOwner}

	ch, err := channels.CreateChannel(ctx, actor, "general", false)
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}

	hub := NewHub(zerolog.Nop())
	deps := SessionDeps{
		Store:     st,
		Channels:  channels,
		Reactions: reaction.NewService(st, channels),
		Audit:     audit.NewService(st, zerolog.Nop()),
		Limits:    ratelimit.NewService(),
		Hub:       hub,
	}

	session := NewSession(nil, actor, deps, zerolog.Nop())
	session.sub = hub.Subscribe(workspaceID)
	t.Cleanup(session.sub.Close)

	return &sessionFixture{session: session, actor: actor, channel: ch, deps: deps}
}

// nextAck pops the next queued frame and returns the ACK result payload.
func (f *sessionFixture) nextAck(t *testing.T, command string) map[string]any {
	t.Helper()

	var frame []byte
	select {
	case frame = <-f.session.send:
	default:
		t.Fatalf("no frame queued, expected %s ack", command)
	}

	var event Event
	if err := json.Unmarshal(frame, &event); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if event.EventType != "ACK" {
		t.Fatalf("event type = %s, want ACK", event.EventType)
	}
	payload, ok := event.Payload.(map[string]any)
	if !ok || payload["command"] != command {
		t.Fatalf("unexpected ack payload %v", event.Payload)
	}
	result, ok := payload["result"].(map[string]any)
	if !ok {
		t.Fatalf("ack result is not an object: %v", payload["result"])
	}
	return result
}

func TestSendMessageDedupReplaysOriginal(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	ctx := context.Background()

	clientMsgID := "cli-1"
	frame := []byte(fmt.Sprintf(
		`{"command":"SEND_MESSAGE","client_msg_id":%q,"payload":{"channel_id":%q,"body_md":"hello"}}`,
		clientMsgID, f.channel.ID,
	))

	if err := f.session.handleFrame(ctx, frame); err != nil {
		t.Fatalf("first send: %v", err)
	}
	first := f.nextAck(t, "SEND_MESSAGE")
	if first["deduped"] != nil {
		t.Fatalf("first send marked deduped: %v", first)
	}

	if err := f.session.handleFrame(ctx, frame); err != nil {
		t.Fatalf("replayed send: %v", err)
	}
	second := f.nextAck(t, "SEND_MESSAGE")
	if second["deduped"] != true {
		t.Fatalf("replay not marked deduped: %v", second)
	}
	if first["message_id"] != second["message_id"] {
		t.Fatalf("replay returned new message: %v vs %v", first["message_id"], second["message_id"])
	}

	page, err := f.deps.Channels.ListMessages(ctx, f.actor, f.channel.ID, "", 50)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected a single message after replay, got %d", len(page.Items))
	}
}

func TestSendMessageDedupIgnoresDeletedOriginal(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	ctx := context.Background()

	frame := []byte(fmt.Sprintf(
		`{"command":"SEND_MESSAGE","client_msg_id":"cli-2","payload":{"channel_id":%q,"body_md":"gone soon"}}`,
		f.channel.ID,
	))
	if err := f.session.handleFrame(ctx, frame); err != nil {
		t.Fatalf("send: %v", err)
	}
	ack := f.nextAck(t, "SEND_MESSAGE")
	messageID, err := uuid.Parse(ack["message_id"].(string))
	if err != nil {
		t.Fatalf("parse message id: %v", err)
	}

	if err := f.deps.Channels.DeleteMessage(ctx, f.actor, messageID); err != nil {
		t.Fatalf("delete message: %v", err)
	}

	// The mapping points at a hidden message, so the replay creates a new one.
	if err := f.session.handleFrame(ctx, frame); err != nil {
		t.Fatalf("send after delete: %v", err)
	}
	replay := f.nextAck(t, "SEND_MESSAGE")
	if replay["deduped"] != nil {
		t.Fatalf("replay of deleted message marked deduped: %v", replay)
	}
	if replay["message_id"] == ack["message_id"] {
		t.Fatalf("replay reused deleted message id %v", replay["message_id"])
	}
}

func TestHandleFrameRejectsUnknownCommand(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)

	err := f.session.handleFrame(context.Background(), []byte(`{"command":"NOPE","payload":{}}`))
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}

	if err := f.session.handleFrame(context.Background(), []byte(`not json`)); err == nil {
		t.Fatalf("expected rejection of malformed frame")
	}
}
