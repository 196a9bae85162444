package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/galynx/galynx-server/internal/store"
)

// HealthHandler serves liveness and readiness endpoints.
type HealthHandler struct {
	store *store.Store
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(st *store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

// Health handles GET /api/v1/health. It reports liveness only and never touches
// external dependencies.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready handles GET /api/v1/ready. Readiness pings the persistence mirror so load
// balancers stop routing to an instance that lost its database.
func (h *HealthHandler) Ready(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c, 3*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}
