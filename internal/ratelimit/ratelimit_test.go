package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/galynx/galynx-server/internal/apperr"
)

func TestFixedWindowBlocksAfterLimit(t *testing.T) {
	t.Parallel()

	limiter := newFixedWindowLimiter(2, time.Minute)
	if err := limiter.check("key", "limit"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := limiter.check("key", "limit"); err != nil {
		t.Fatalf("second: %v", err)
	}

	err := limiter.check("key", "limit")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeTooManyRequests {
		t.Fatalf("expected too_many_requests, got %v", err)
	}

	// A different key has its own window.
	if err := limiter.check("other", "limit"); err != nil {
		t.Fatalf("independent key: %v", err)
	}
}

func TestFixedWindowResets(t *testing.T) {
	t.Parallel()

	limiter := newFixedWindowLimiter(1, 10*time.Millisecond)
	if err := limiter.check("key", "limit"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := limiter.check("key", "limit"); err == nil {
		t.Fatalf("expected limit hit")
	}

	time.Sleep(15 * time.Millisecond)
	if err := limiter.check("key", "limit"); err != nil {
		t.Fatalf("after window reset: %v", err)
	}
}

func TestCheckAuthKeysOnIPAndEmail(t *testing.T) {
	t.Parallel()

	svc := NewService()
	for i := 0; i < 30; i++ {
		if err := svc.CheckAuth("10.0.0.1", "User@Example.com"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := svc.CheckAuth("10.0.0.1", "user@example.com"); err == nil {
		t.Fatalf("expected limit for same ip+email (case-insensitive)")
	}
	// A different email from the same address is a separate bucket.
	if err := svc.CheckAuth("10.0.0.1", "other@example.com"); err != nil {
		t.Fatalf("different email: %v", err)
	}
	// Anonymous attempts key on "-".
	if err := svc.CheckAuth("10.0.0.1", ""); err != nil {
		t.Fatalf("anonymous: %v", err)
	}
}

func TestCheckWSCommandKeysOnUser(t *testing.T) {
	t.Parallel()

	svc := NewService()
	userID := uuid.New()
	for i := 0; i < 600; i++ {
		if err := svc.CheckWSCommand(userID); err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
	}
	if err := svc.CheckWSCommand(userID); err == nil {
		t.Fatalf("expected command limit")
	}
	if err := svc.CheckWSCommand(uuid.New()); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestClientIPFromHeaders(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		forwardedFor string
		realIP       string
		forwarded    string
		want         string
	}{
		{"xff first entry", "203.0.113.9, 10.0.0.1", "", "", "203.0.113.9"},
		{"xff padded", "  203.0.113.9  ", "", "", "203.0.113.9"},
		{"real ip fallback", "", "198.51.100.2", "", "198.51.100.2"},
		{"forwarded directive", "", "", `for="192.0.2.60";proto=http`, "192.0.2.60"},
		{"forwarded second segment", "", "", `proto=https; for=192.0.2.61`, "192.0.2.61"},
		{"nothing", "", "", "", "unknown"},
		{"xff wins", "203.0.113.9", "198.51.100.2", "for=192.0.2.60", "203.0.113.9"},
	}
	for _, tc := range cases {
		if got := ClientIPFromHeaders(tc.forwardedFor, tc.realIP, tc.forwarded); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}
