package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/attachment"
	"github.com/galynx/galynx-server/internal/audit"
	"github.com/galynx/galynx-server/internal/httputil"
)

// AttachmentHandler serves presigned upload and download endpoints.
type AttachmentHandler struct {
	attachments *attachment.Service
	audit       *audit.Service
	log         zerolog.Logger
}

// NewAttachmentHandler creates a new attachment handler.
func NewAttachmentHandler(attachments *attachment.Service, auditSvc *audit.Service, logger zerolog.Logger) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments, audit: auditSvc, log: logger}
}

type commitRequest struct {
	UploadID  uuid.UUID  `json:"upload_id"`
	MessageID *uuid.UUID `json:"message_id,omitempty"`
}

// Presign handles POST /api/v1/attachments/presign.
func (h *AttachmentHandler) Presign(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}

	var body attachment.PresignRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}

	resp, err := h.attachments.Presign(c, actor, body)
	if err != nil {
		return httputil.Error(c, err)
	}

	targetID := resp.UploadID.String()
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "ATTACHMENT_PRESIGN", "attachment", &targetID, map[string]any{
		"key":        resp.Key,
		"expires_at": resp.ExpiresAt,
	})

	return c.JSON(resp)
}

// Commit handles POST /api/v1/attachments/commit.
func (h *AttachmentHandler) Commit(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}

	var body commitRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}
	if body.UploadID == uuid.Nil {
		return httputil.Error(c, apperr.BadRequest("upload_id is required"))
	}

	att, err := h.attachments.Commit(c, actor, body.UploadID, body.MessageID)
	if err != nil {
		return httputil.Error(c, err)
	}

	targetID := att.ID.String()
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "ATTACHMENT_COMMIT", "attachment", &targetID, map[string]any{
		"channel_id": att.ChannelID,
		"message_id": att.MessageID,
	})

	return c.JSON(att)
}

// Get handles GET /api/v1/attachments/{id}.
func (h *AttachmentHandler) Get(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	attachmentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid attachment id"))
	}

	resp, err := h.attachments.Get(c, actor.WorkspaceID, attachmentID)
	if err != nil {
		return httputil.Error(c, err)
	}
	return c.JSON(resp)
}
