package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
)

func TestBearerToken(t *testing.T) {
	t.Parallel()

	if _, err := BearerToken(""); err == nil {
		t.Fatalf("expected error for missing header")
	}
	if _, err := BearerToken("Basic abc"); err == nil {
		t.Fatalf("expected error for non-bearer header")
	}
	token, err := BearerToken("Bearer  abc.def.ghi ")
	if err != nil || token != "abc.def.ghi" {
		t.Fatalf("expected trimmed token, got %q err %v", token, err)
	}
}

func TestRequireAuthMiddleware(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)

	tokens, err := svc.Login(t.Context(), "owner@galynx.local", "ChangeMe123!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	app := fiber.New()
	app.Get("/private", RequireAuth(svc), func(c fiber.Ctx) error {
		actor, ok := ActorFrom(c)
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.JSON(fiber.Map{"user_id": actor.UserID})
	})

	// No token.
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	// Valid token.
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var out struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if out.UserID != svc.BootstrapUserID().String() {
		t.Fatalf("expected bootstrap user, got %s", out.UserID)
	}
}
