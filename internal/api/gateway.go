package api

import (
	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/httputil"
	"github.com/galynx/galynx-server/internal/ratelimit"
	"github.com/galynx/galynx-server/internal/realtime"
)

// GatewayHandler serves the WebSocket upgrade endpoint for the realtime
// gateway.
type GatewayHandler struct {
	auth   *auth.Service
	limits *ratelimit.Service
	deps   realtime.SessionDeps
	log    zerolog.Logger
}

// NewGatewayHandler creates a new gateway handler.
func NewGatewayHandler(authSvc *auth.Service, limits *ratelimit.Service, deps realtime.SessionDeps, logger zerolog.Logger) *GatewayHandler {
	return &GatewayHandler{auth: authSvc, limits: limits, deps: deps, log: logger}
}

// Upgrade handles GET /api/v1/ws. The caller is authenticated and rate
// limited before the protocol switch; the actor context is captured here
// because the socket callback runs after the HTTP request is gone.
func (h *GatewayHandler) Upgrade(c fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token, err := auth.BearerToken(c.Get("Authorization"))
	if err != nil {
		return httputil.Error(c, err)
	}
	actor, err := h.auth.Authenticate(c, token)
	if err != nil {
		return httputil.Error(c, err)
	}
	if err := h.limits.CheckWSConnect(clientIP(c), actor.UserID); err != nil {
		return httputil.Error(c, err)
	}

	return websocket.New(func(conn *websocket.Conn) {
		realtime.NewSession(conn.Conn, actor, h.deps, h.log).Run()
	})(c)
}
