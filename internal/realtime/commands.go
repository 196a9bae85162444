package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/galynx/galynx-server/internal/apperr"
)

type commandEnvelope struct {
	Command     string          `json:"command"`
	Payload     json.RawMessage `json:"payload"`
	ClientMsgID *string         `json:"client_msg_id"`
}

type sendMessagePayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	BodyMD    string    `json:"body_md"`
}

type editMessagePayload struct {
	MessageID uuid.UUID `json:"message_id"`
	BodyMD    string    `json:"body_md"`
}

type deleteMessagePayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type reactionPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

type fetchMorePayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	Cursor    string    `json:"cursor"`
	Limit     int       `json:"limit"`
}

type fetchThreadPayload struct {
	RootID uuid.UUID `json:"root_id"`
	Cursor string    `json:"cursor"`
	Limit  int       `json:"limit"`
}

// handleFrame dispatches one client command. Returned errors become ERROR
// events; the connection stays open.
func (s *Session) handleFrame(ctx context.Context, raw []byte) error {
	if err := s.deps.Limits.CheckWSCommand(s.actor.UserID); err != nil {
		return err
	}

	var cmd commandEnvelope
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return apperr.BadRequest("invalid websocket command payload")
	}

	switch cmd.Command {
	case "SEND_MESSAGE":
		return s.handleSendMessage(ctx, cmd)
	case "EDIT_MESSAGE":
		return s.handleEditMessage(ctx, cmd)
	case "DELETE_MESSAGE":
		return s.handleDeleteMessage(ctx, cmd)
	case "ADD_REACTION":
		return s.handleReaction(ctx, cmd, true)
	case "REMOVE_REACTION":
		return s.handleReaction(ctx, cmd, false)
	case "FETCH_MORE":
		return s.handleFetchMore(ctx, cmd)
	case "FETCH_THREAD":
		return s.handleFetchThread(ctx, cmd)
	default:
		return apperr.BadRequest(fmt.Sprintf("unsupported websocket command: %s", cmd.Command))
	}
}

// handleSendMessage creates a message, deduplicated by (workspace, user,
// channel, client_msg_id). A replay returns the original message id while the
// message is still visible.
func (s *Session) handleSendMessage(ctx context.Context, cmd commandEnvelope) error {
	var payload sendMessagePayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return apperr.BadRequest("invalid SEND_MESSAGE payload")
	}
	clientMsgID, err := normalizeClientMsgID(cmd.ClientMsgID)
	if err != nil {
		return err
	}

	if clientMsgID != "" {
		dedupKey := sendDedupKey(s.actor.WorkspaceID, s.actor.UserID, payload.ChannelID, clientMsgID)
		if existingID, ok := s.deps.Store.GetSendDedup(ctx, dedupKey); ok {
			if _, err := s.deps.Channels.GetMessage(ctx, s.actor.WorkspaceID, existingID); err == nil {
				s.sendAck("SEND_MESSAGE", cmd.ClientMsgID, map[string]any{
					"message_id": existingID,
					"deduped":    true,
				})
				return nil
			}
		}
	}

	message, err := s.deps.Channels.CreateMessage(ctx, s.actor, payload.ChannelID, payload.BodyMD)
	if err != nil {
		return err
	}
	if clientMsgID != "" {
		s.deps.Store.PutSendDedup(ctx, sendDedupKey(s.actor.WorkspaceID, s.actor.UserID, payload.ChannelID, clientMsgID), message.ID)
	}

	s.deps.Hub.Emit(s.actor.WorkspaceID, NewEvent(EventMessageCreated, s.actor.WorkspaceID, &message.ChannelID, cmd.ClientMsgID, message))
	s.audit(ctx, "MESSAGE_CREATED_WS", "message", message.ID.String(), map[string]any{
		"channel_id":    message.ChannelID,
		"client_msg_id": cmd.ClientMsgID,
	})
	s.sendAck("SEND_MESSAGE", cmd.ClientMsgID, map[string]any{"message_id": message.ID})
	return nil
}

func (s *Session) handleEditMessage(ctx context.Context, cmd commandEnvelope) error {
	var payload editMessagePayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return apperr.BadRequest("invalid EDIT_MESSAGE payload")
	}
	clientMsgID, err := normalizeClientMsgID(cmd.ClientMsgID)
	if err != nil {
		return err
	}

	if clientMsgID != "" {
		key := onceKey(s.actor.WorkspaceID, s.actor.UserID, "EDIT_MESSAGE", "message:"+payload.MessageID.String(), clientMsgID)
		if s.deps.Store.HasOnceDedup(ctx, key) {
			s.sendAck("EDIT_MESSAGE", cmd.ClientMsgID, map[string]any{
				"message_id": payload.MessageID,
				"deduped":    true,
			})
			return nil
		}
		s.deps.Store.PutOnceDedup(ctx, key)
	}

	message, err := s.deps.Channels.UpdateMessage(ctx, s.actor, payload.MessageID, payload.BodyMD)
	if err != nil {
		return err
	}

	s.deps.Hub.Emit(s.actor.WorkspaceID, NewEvent(EventMessageUpdated, s.actor.WorkspaceID, &message.ChannelID, cmd.ClientMsgID, message))
	s.audit(ctx, "MESSAGE_UPDATED_WS", "message", message.ID.String(), map[string]any{
		"channel_id":    message.ChannelID,
		"client_msg_id": cmd.ClientMsgID,
	})
	s.sendAck("EDIT_MESSAGE", cmd.ClientMsgID, map[string]any{"message_id": message.ID})
	return nil
}

func (s *Session) handleDeleteMessage(ctx context.Context, cmd commandEnvelope) error {
	var payload deleteMessagePayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return apperr.BadRequest("invalid DELETE_MESSAGE payload")
	}
	clientMsgID, err := normalizeClientMsgID(cmd.ClientMsgID)
	if err != nil {
		return err
	}

	if clientMsgID != "" {
		key := onceKey(s.actor.WorkspaceID, s.actor.UserID, "DELETE_MESSAGE", "message:"+payload.MessageID.String(), clientMsgID)
		if s.deps.Store.HasOnceDedup(ctx, key) {
			s.sendAck("DELETE_MESSAGE", cmd.ClientMsgID, map[string]any{
				"message_id": payload.MessageID,
				"deduped":    true,
			})
			return nil
		}
		s.deps.Store.PutOnceDedup(ctx, key)
	}

	target, err := s.deps.Channels.GetMessage(ctx, s.actor.WorkspaceID, payload.MessageID)
	if err != nil {
		return err
	}
	if err := s.deps.Channels.DeleteMessage(ctx, s.actor, payload.MessageID); err != nil {
		return err
	}

	s.deps.Hub.Emit(s.actor.WorkspaceID, NewEvent(EventMessageDeleted, s.actor.WorkspaceID, &target.ChannelID, cmd.ClientMsgID, map[string]any{
		"message_id": payload.MessageID,
	}))
	s.audit(ctx, "MESSAGE_DELETED_WS", "message", payload.MessageID.String(), map[string]any{
		"channel_id":    target.ChannelID,
		"client_msg_id": cmd.ClientMsgID,
	})
	s.sendAck("DELETE_MESSAGE", cmd.ClientMsgID, map[string]any{"message_id": payload.MessageID})
	return nil
}

func (s *Session) handleReaction(ctx context.Context, cmd commandEnvelope, add bool) error {
	command := "REMOVE_REACTION"
	auditAction := "REACTION_REMOVED_WS"
	if add {
		command = "ADD_REACTION"
		auditAction = "REACTION_ADDED_WS"
	}

	var payload reactionPayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return apperr.BadRequest("invalid " + command + " payload")
	}
	clientMsgID, err := normalizeClientMsgID(cmd.ClientMsgID)
	if err != nil {
		return err
	}

	if clientMsgID != "" {
		target := fmt.Sprintf("reaction:%s:%s", payload.MessageID, strings.TrimSpace(payload.Emoji))
		key := onceKey(s.actor.WorkspaceID, s.actor.UserID, command, target, clientMsgID)
		if s.deps.Store.HasOnceDedup(ctx, key) {
			s.sendAck(command, cmd.ClientMsgID, map[string]any{"ok": true, "deduped": true})
			return nil
		}
		s.deps.Store.PutOnceDedup(ctx, key)
	}

	var update any
	var channelID uuid.UUID
	var messageID uuid.UUID
	var emoji string
	if add {
		u, err := s.deps.Reactions.Add(ctx, s.actor, payload.MessageID, payload.Emoji)
		if err != nil {
			return err
		}
		update, channelID, messageID, emoji = u, u.ChannelID, u.MessageID, u.Emoji
	} else {
		u, err := s.deps.Reactions.Remove(ctx, s.actor, payload.MessageID, payload.Emoji)
		if err != nil {
			return err
		}
		update, channelID, messageID, emoji = u, u.ChannelID, u.MessageID, u.Emoji
	}

	s.deps.Hub.Emit(s.actor.WorkspaceID, NewEvent(EventReactionUpdated, s.actor.WorkspaceID, &channelID, cmd.ClientMsgID, update))
	s.audit(ctx, auditAction, "message", messageID.String(), map[string]any{
		"emoji":         emoji,
		"client_msg_id": cmd.ClientMsgID,
	})
	s.sendAck(command, cmd.ClientMsgID, map[string]any{"ok": true})
	return nil
}

// handleFetchMore replies with a message page in the ACK; nothing is
// broadcast.
func (s *Session) handleFetchMore(ctx context.Context, cmd commandEnvelope) error {
	var payload fetchMorePayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return apperr.BadRequest("invalid FETCH_MORE payload")
	}

	page, err := s.deps.Channels.ListMessages(ctx, s.actor, payload.ChannelID, payload.Cursor, payload.Limit)
	if err != nil {
		return err
	}
	s.sendAck("FETCH_MORE", cmd.ClientMsgID, page)
	return nil
}

func (s *Session) handleFetchThread(ctx context.Context, cmd commandEnvelope) error {
	var payload fetchThreadPayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
		return apperr.BadRequest("invalid FETCH_THREAD payload")
	}

	summary, err := s.deps.Channels.ThreadSummary(ctx, s.actor, payload.RootID)
	if err != nil {
		return err
	}
	replies, err := s.deps.Channels.ListThreadReplies(ctx, s.actor, payload.RootID, payload.Cursor, payload.Limit)
	if err != nil {
		return err
	}
	s.sendAck("FETCH_THREAD", cmd.ClientMsgID, map[string]any{
		"summary": summary,
		"replies": replies,
	})
	return nil
}

func (s *Session) sendAck(command string, correlationID *string, result any) {
	s.enqueueEvent(Event{
		EventType:     "ACK",
		CorrelationID: correlationID,
		ServerTS:      time.Now().UnixMilli(),
		Payload: map[string]any{
			"command": command,
			"result":  result,
		},
	})
}

func (s *Session) enqueueError(err error) {
	appErr := apperr.From(err)
	s.enqueueEvent(Event{
		EventType: "ERROR",
		ServerTS:  time.Now().UnixMilli(),
		Payload: map[string]any{
			"status": appErr.Status,
			"error":  appErr.Message,
		},
	})
}

func (s *Session) audit(ctx context.Context, action, targetType, targetID string, metadata map[string]any) {
	s.deps.Audit.Write(ctx, s.actor.WorkspaceID, &s.actor.UserID, action, targetType, &targetID, metadata)
}

// normalizeClientMsgID trims the optional idempotency key. Absent keys
// disable dedup; present-but-blank or oversized keys are rejected.
func normalizeClientMsgID(value *string) (string, error) {
	if value == nil {
		return "", nil
	}
	normalized := strings.TrimSpace(*value)
	if normalized == "" {
		return "", apperr.BadRequest("client_msg_id must not be empty")
	}
	if len(normalized) > 128 {
		return "", apperr.BadRequest("client_msg_id is too long")
	}
	return normalized, nil
}

func sendDedupKey(workspaceID, userID, channelID uuid.UUID, clientMsgID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", workspaceID, userID, channelID, clientMsgID)
}

func onceKey(workspaceID, userID uuid.UUID, command, target, clientMsgID string) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", workspaceID, userID, strings.TrimSpace(command), strings.TrimSpace(target), strings.TrimSpace(clientMsgID))
}
