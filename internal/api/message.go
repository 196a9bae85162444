package api

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/audit"
	"github.com/galynx/galynx-server/internal/channel"
	"github.com/galynx/galynx-server/internal/httputil"
	"github.com/galynx/galynx-server/internal/realtime"
)

// MessageHandler serves channel message endpoints.
type MessageHandler struct {
	channels *channel.Service
	audit    *audit.Service
	hub      *realtime.Hub
	log      zerolog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(channels *channel.Service, auditSvc *audit.Service, hub *realtime.Hub, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{channels: channels, audit: auditSvc, hub: hub, log: logger}
}

type messageBodyRequest struct {
	BodyMD string `json:"body_md"`
}

// List handles GET /api/v1/channels/{id}/messages.
func (h *MessageHandler) List(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	channelID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid channel id"))
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.channels.ListMessages(c, actor, channelID, c.Query("cursor"), limit)
	if err != nil {
		return httputil.Error(c, err)
	}
	return c.JSON(page)
}

// Create handles POST /api/v1/channels/{id}/messages.
func (h *MessageHandler) Create(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	channelID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid channel id"))
	}

	var body messageBodyRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}

	msg, err := h.channels.CreateMessage(c, actor, channelID, body.BodyMD)
	if err != nil {
		return httputil.Error(c, err)
	}

	targetID := msg.ID.String()
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "MESSAGE_CREATED", "message", &targetID, map[string]any{
		"channel_id":     msg.ChannelID,
		"thread_root_id": msg.ThreadRootID,
	})
	h.hub.Emit(actor.WorkspaceID, realtime.NewEvent(realtime.EventMessageCreated, actor.WorkspaceID, &msg.ChannelID, nil, msg))

	return c.Status(fiber.StatusCreated).JSON(msg)
}

// Update handles PATCH /api/v1/messages/{id}.
func (h *MessageHandler) Update(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	messageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid message id"))
	}

	var body messageBodyRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}

	msg, err := h.channels.UpdateMessage(c, actor, messageID, body.BodyMD)
	if err != nil {
		return httputil.Error(c, err)
	}

	targetID := msg.ID.String()
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "MESSAGE_UPDATED", "message", &targetID, map[string]any{
		"channel_id": msg.ChannelID,
	})
	h.hub.Emit(actor.WorkspaceID, realtime.NewEvent(realtime.EventMessageUpdated, actor.WorkspaceID, &msg.ChannelID, nil, msg))

	return c.JSON(msg)
}

// Delete handles DELETE /api/v1/messages/{id}. The message is soft-deleted
// and disappears from listings; the broadcast carries only the id.
func (h *MessageHandler) Delete(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	messageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid message id"))
	}

	if err := h.channels.DeleteMessage(c, actor, messageID); err != nil {
		return httputil.Error(c, err)
	}

	targetID := messageID.String()
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "MESSAGE_DELETED", "message", &targetID, map[string]any{})
	h.hub.Emit(actor.WorkspaceID, realtime.NewEvent(realtime.EventMessageDeleted, actor.WorkspaceID, nil, nil, fiber.Map{
		"message_id": messageID,
	}))

	return c.SendStatus(fiber.StatusNoContent)
}
