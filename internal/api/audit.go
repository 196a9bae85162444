package api

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/audit"
	"github.com/galynx/galynx-server/internal/httputil"
)

// AuditHandler serves the audit log read endpoint.
type AuditHandler struct {
	audit *audit.Service
	log   zerolog.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(auditSvc *audit.Service, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{audit: auditSvc, log: logger}
}

// List handles GET /api/v1/audit.
func (h *AuditHandler) List(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	page, err := h.audit.List(c, actor, c.Query("cursor"), limit)
	if err != nil {
		return httputil.Error(c, err)
	}
	return c.JSON(page)
}
