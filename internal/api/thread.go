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

// ThreadHandler serves thread summary and reply endpoints.
type ThreadHandler struct {
	channels *channel.Service
	audit    *audit.Service
	hub      *realtime.Hub
	log      zerolog.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(channels *channel.Service, auditSvc *audit.Service, hub *realtime.Hub, logger zerolog.Logger) *ThreadHandler {
	return &ThreadHandler{channels: channels, audit: auditSvc, hub: hub, log: logger}
}

// Summary handles GET /api/v1/threads/{rootID}.
func (h *ThreadHandler) Summary(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	rootID, err := uuid.Parse(c.Params("rootID"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid thread root id"))
	}

	summary, err := h.channels.ThreadSummary(c, actor, rootID)
	if err != nil {
		return httputil.Error(c, err)
	}
	return c.JSON(summary)
}

// ListReplies handles GET /api/v1/threads/{rootID}/replies.
func (h *ThreadHandler) ListReplies(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	rootID, err := uuid.Parse(c.Params("rootID"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid thread root id"))
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.channels.ListThreadReplies(c, actor, rootID, c.Query("cursor"), limit)
	if err != nil {
		return httputil.Error(c, err)
	}
	return c.JSON(page)
}

// CreateReply handles POST /api/v1/threads/{rootID}/replies. The broadcast is
// a THREAD_UPDATED event carrying the refreshed summary rather than the reply
// itself, so clients can update reply counts without a second fetch.
func (h *ThreadHandler) CreateReply(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	rootID, err := uuid.Parse(c.Params("rootID"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid thread root id"))
	}

	var body messageBodyRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}

	reply, err := h.channels.CreateThreadReply(c, actor, rootID, body.BodyMD)
	if err != nil {
		return httputil.Error(c, err)
	}

	targetID := reply.ID.String()
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "THREAD_REPLY_CREATED", "message", &targetID, map[string]any{
		"root_id":    rootID,
		"channel_id": reply.ChannelID,
	})

	if summary, err := h.channels.ThreadSummary(c, actor, rootID); err == nil {
		h.hub.Emit(actor.WorkspaceID, realtime.NewEvent(realtime.EventThreadUpdated, actor.WorkspaceID, &reply.ChannelID, nil, summary))
	} else {
		h.log.Warn().Err(err).Str("root_id", rootID.String()).Msg("Thread summary for broadcast failed")
	}

	return c.Status(fiber.StatusCreated).JSON(reply)
}
