// Package api holds the HTTP handlers for the REST surface. Handlers bind and
// validate request bodies, call the domain services, and write audit entries
// and realtime events for mutations.
package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/ratelimit"
)

// actorFrom returns the authenticated caller placed in Locals by
// auth.RequireAuth. Handlers registered behind the middleware can rely on it
// being present; a miss means a route was wired without the middleware.
func actorFrom(c fiber.Ctx) (auth.Context, error) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		return auth.Context{}, apperr.Unauthorized("missing authentication context")
	}
	return actor, nil
}

// clientIP resolves the caller's address from proxy headers, falling back to
// the connection's remote address.
func clientIP(c fiber.Ctx) string {
	ip := ratelimit.ClientIPFromHeaders(c.Get("X-Forwarded-For"), c.Get("X-Real-IP"), c.Get("Forwarded"))
	if ip == "unknown" && c.IP() != "" {
		ip = c.IP()
	}
	return ip
}
