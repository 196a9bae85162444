package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/audit"
	"github.com/galynx/galynx-server/internal/channel"
	"github.com/galynx/galynx-server/internal/httputil"
	"github.com/galynx/galynx-server/internal/realtime"
)

// ChannelHandler serves channel CRUD and membership endpoints.
type ChannelHandler struct {
	channels *channel.Service
	audit    *audit.Service
	hub      *realtime.Hub
	log      zerolog.Logger
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(channels *channel.Service, auditSvc *audit.Service, hub *realtime.Hub, logger zerolog.Logger) *ChannelHandler {
	return &ChannelHandler{channels: channels, audit: auditSvc, hub: hub, log: logger}
}

type createChannelRequest struct {
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
}

type channelMemberRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// List handles GET /api/v1/channels.
func (h *ChannelHandler) List(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	return c.JSON(h.channels.ListChannels(c, actor.WorkspaceID))
}

// Create handles POST /api/v1/channels.
func (h *ChannelHandler) Create(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}

	var body createChannelRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}

	ch, err := h.channels.CreateChannel(c, actor, body.Name, body.IsPrivate)
	if err != nil {
		return httputil.Error(c, err)
	}

	targetID := ch.ID.String()
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "CHANNEL_CREATED", "channel", &targetID, map[string]any{
		"name":       ch.Name,
		"is_private": ch.IsPrivate,
	})
	h.hub.Emit(actor.WorkspaceID, realtime.NewEvent(realtime.EventChannelCreated, actor.WorkspaceID, &ch.ID, nil, ch))

	return c.Status(fiber.StatusCreated).JSON(ch)
}

// Delete handles DELETE /api/v1/channels/{id}.
func (h *ChannelHandler) Delete(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	channelID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid channel id"))
	}

	if err := h.channels.DeleteChannel(c, actor, channelID); err != nil {
		return httputil.Error(c, err)
	}

	targetID := channelID.String()
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "CHANNEL_DELETED", "channel", &targetID, map[string]any{})
	h.hub.Emit(actor.WorkspaceID, realtime.NewEvent(realtime.EventChannelDeleted, actor.WorkspaceID, &channelID, nil, fiber.Map{
		"channel_id": channelID,
	}))

	return c.SendStatus(fiber.StatusNoContent)
}

// ListMembers handles GET /api/v1/channels/{id}/members.
func (h *ChannelHandler) ListMembers(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	channelID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid channel id"))
	}

	members, err := h.channels.ListMembers(c, actor, channelID)
	if err != nil {
		return httputil.Error(c, err)
	}
	return c.JSON(members)
}

// AddMember handles POST /api/v1/channels/{id}/members.
func (h *ChannelHandler) AddMember(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	channelID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid channel id"))
	}

	var body channelMemberRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}
	if body.UserID == uuid.Nil {
		return httputil.Error(c, apperr.BadRequest("user_id is required"))
	}

	if err := h.channels.AddMember(c, actor, channelID, body.UserID); err != nil {
		return httputil.Error(c, err)
	}

	targetID := channelID.String()
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "CHANNEL_MEMBER_ADDED", "channel", &targetID, map[string]any{
		"member_user_id": body.UserID,
	})

	return c.SendStatus(fiber.StatusNoContent)
}

// RemoveMember handles DELETE /api/v1/channels/{id}/members/{userID}.
func (h *ChannelHandler) RemoveMember(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	channelID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid channel id"))
	}
	userID, err := uuid.Parse(c.Params("userID"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid user id"))
	}

	if err := h.channels.RemoveMember(c, actor, channelID, userID); err != nil {
		return httputil.Error(c, err)
	}

	targetID := channelID.String()
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "CHANNEL_MEMBER_REMOVED", "channel", &targetID, map[string]any{
		"member_user_id": userID,
	})

	return c.SendStatus(fiber.StatusNoContent)
}
