package auth

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/httputil"
)

// actorLocalKey is the Locals key RequireAuth stores the caller context under.
const actorLocalKey = "actor"

// RequireAuth returns Fiber middleware that validates the Bearer token from
// the Authorization header and stores the resulting Context in Locals.
func RequireAuth(svc *Service) fiber.Handler {
	return func(c fiber.Ctx) error {
		token, err := BearerToken(c.Get("Authorization"))
		if err != nil {
			return httputil.Error(c, err)
		}

		actor, err := svc.Authenticate(c, token)
		if err != nil {
			return httputil.Error(c, err)
		}

		c.Locals(actorLocalKey, actor)
		return c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", apperr.Unauthorized("missing authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", apperr.Unauthorized("expected bearer token")
	}
	return strings.TrimSpace(token), nil
}

// ActorFrom returns the authenticated caller stored by RequireAuth.
func ActorFrom(c fiber.Ctx) (Context, bool) {
	actor, ok := c.Locals(actorLocalKey).(Context)
	return actor, ok
}
