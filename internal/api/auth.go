package api

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/audit"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/httputil"
	"github.com/galynx/galynx-server/internal/ratelimit"
)

// AuthHandler serves authentication endpoints.
type AuthHandler struct {
	auth   *auth.Service
	audit  *audit.Service
	limits *ratelimit.Service
	log    zerolog.Logger
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(svc *auth.Service, auditSvc *audit.Service, limits *ratelimit.Service, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, audit: auditSvc, limits: limits, log: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c fiber.Ctx) error {
	var body loginRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}
	if strings.TrimSpace(body.Email) == "" || strings.TrimSpace(body.Password) == "" {
		return httputil.Error(c, apperr.BadRequest("email and password are required"))
	}

	if err := h.limits.CheckAuth(clientIP(c), body.Email); err != nil {
		return httputil.Error(c, err)
	}

	tokens, err := h.auth.Login(c, body.Email, body.Password)
	if err != nil {
		return httputil.Error(c, err)
	}

	actor, err := h.auth.Authenticate(c, tokens.AccessToken)
	if err != nil {
		return httputil.Error(c, err)
	}
	targetID := actor.UserID.String()
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "AUTH_LOGIN", "user", &targetID, map[string]any{
		"email": strings.ToLower(strings.TrimSpace(body.Email)),
	})

	return c.JSON(tokens)
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	if err := h.limits.CheckAuth(clientIP(c), ""); err != nil {
		return httputil.Error(c, err)
	}

	var body refreshRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}
	if body.RefreshToken == "" {
		return httputil.Error(c, apperr.BadRequest("refresh_token is required"))
	}

	tokens, err := h.auth.Refresh(c, body.RefreshToken)
	if err != nil {
		return httputil.Error(c, err)
	}

	actor, err := h.auth.Authenticate(c, tokens.AccessToken)
	if err != nil {
		return httputil.Error(c, err)
	}
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "AUTH_REFRESH", "session", nil, map[string]any{
		"reason": "token_rotation",
	})

	return c.JSON(tokens)
}

// Logout handles POST /api/v1/auth/logout. It revokes the presented refresh
// token; the access token stays valid until it expires.
func (h *AuthHandler) Logout(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	if err := h.limits.CheckAuth(clientIP(c), ""); err != nil {
		return httputil.Error(c, err)
	}

	var body refreshRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}
	if body.RefreshToken == "" {
		return httputil.Error(c, apperr.BadRequest("refresh_token is required"))
	}

	if err := h.auth.Logout(c, body.RefreshToken); err != nil {
		return httputil.Error(c, err)
	}
	h.audit.Write(c, actor.WorkspaceID, &actor.UserID, "AUTH_LOGOUT", "session", nil, map[string]any{})

	return c.SendStatus(fiber.StatusNoContent)
}

// Me handles GET /api/v1/me.
func (h *AuthHandler) Me(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}

	me, err := h.auth.Me(c, actor)
	if err != nil {
		return httputil.Error(c, err)
	}
	return c.JSON(me)
}
