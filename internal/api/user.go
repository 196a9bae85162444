package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/audit"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/httputil"
	"github.com/galynx/galynx-server/internal/user"
)

// UserHandler serves workspace user management endpoints.
type UserHandler struct {
	users *user.Service
	audit *audit.Service
	log   zerolog.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(users *user.Service, auditSvc *audit.Service, logger zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, audit: auditSvc, log: logger}
}

type createUserRequest struct {
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

// requireUserAdmin gates user management to owners and admins.
func requireUserAdmin(actor auth.Context) error {
	if !actor.Role.CanAdminister() {
		return apperr.Unauthorized("you do not have permission to manage users")
	}
	return nil
}

// List handles GET /api/v1/users.
func (h *UserHandler) List(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	if err := requireUserAdmin(actor); err != nil {
		return httputil.Error(c, err)
	}

	users, err := h.users.List(c, actor.WorkspaceID)
	if err != nil {
		return httputil.Error(c, err)
	}
	return c.JSON(users)
}

// Create handles POST /api/v1/users.
func (h *UserHandler) Create(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	if err := requireUserAdmin(actor); err != nil {
		return httputil.Error(c, err)
	}

	var body createUserRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}

	created, err := h.users.Create(c, actor.WorkspaceID, body.Email, body.Name, body.Password, body.Role)
	if err != nil {
		return httputil.Error(c, err)
	}

	targetID := created.ID.String()
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "USER_CREATED", "user", &targetID, map[string]any{
		"email": created.Email,
		"role":  created.Role,
	})

	return c.Status(fiber.StatusCreated).JSON(created)
}
