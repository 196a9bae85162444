// Package ratelimit applies fixed-window limits to the abuse-prone edges:
// auth endpoints, websocket connects, and websocket commands.
package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/galynx/galynx-server/internal/apperr"
)

// Service bundles the three limiters. Each keeps its own key space.
type Service struct {
	auth      *fixedWindowLimiter
	wsConnect *fixedWindowLimiter
	wsCommand *fixedWindowLimiter
}

func NewService() *Service {
	return &Service{
		auth:      newFixedWindowLimiter(30, time.Minute),
		wsConnect: newFixedWindowLimiter(12, time.Minute),
		wsCommand: newFixedWindowLimiter(600, time.Minute),
	}
}

// CheckAuth limits login/refresh/logout attempts per (ip, email) pair so one
// address cannot lock out a whole NAT and one email cannot be hammered from
// many addresses.
func (s *Service) CheckAuth(clientIP, email string) error {
	emailKey := "-"
	if email != "" {
		emailKey = normalizeKey(email)
	}
	key := fmt.Sprintf("ip=%s|email=%s", normalizeKey(clientIP), emailKey)
	return s.auth.check(key, "too many auth requests, retry in a minute")
}

// CheckWSConnect limits websocket upgrade attempts per (ip, user) pair.
func (s *Service) CheckWSConnect(clientIP string, userID uuid.UUID) error {
	key := fmt.Sprintf("ip=%s|user=%s", normalizeKey(clientIP), userID)
	return s.wsConnect.check(key, "too many websocket connection attempts")
}

// CheckWSCommand limits command frames per user across all their sockets.
func (s *Service) CheckWSCommand(userID uuid.UUID) error {
	key := fmt.Sprintf("user=%s", userID)
	return s.wsCommand.check(key, "too many websocket commands, slow down")
}

type windowBucket struct {
	count   int
	resetAt time.Time
}

type fixedWindowLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	buckets     map[string]*windowBucket
}

func newFixedWindowLimiter(maxRequests int, window time.Duration) *fixedWindowLimiter {
	return &fixedWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		buckets:     make(map[string]*windowBucket),
	}
}

func (l *fixedWindowLimiter) check(key, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &windowBucket{resetAt: now.Add(l.window)}
		l.buckets[key] = bucket
	}

	if !now.Before(bucket.resetAt) {
		bucket.count = 0
		bucket.resetAt = now.Add(l.window)
	}

	if bucket.count >= l.maxRequests {
		return apperr.TooManyRequests(message)
	}
	bucket.count++
	return nil
}

// ClientIPFromHeaders resolves the caller address from proxy headers:
// X-Forwarded-For's first entry, then X-Real-IP, then the RFC 7239 Forwarded
// for= directive. Falls back to "unknown" so limiter keys stay well formed.
func ClientIPFromHeaders(forwardedFor, realIP, forwarded string) string {
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.SplitN(forwardedFor, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(realIP); ip != "" {
		return ip
	}
	if ip := parseForwardedFor(forwarded); ip != "" {
		return ip
	}
	return "unknown"
}

func parseForwardedFor(value string) string {
	for _, segment := range strings.Split(value, ";") {
		segment = strings.TrimSpace(segment)
		if rest, ok := strings.CutPrefix(segment, "for="); ok {
			ip := strings.TrimSpace(strings.Trim(rest, `"`))
			if ip != "" {
				return ip
			}
		}
	}
	return ""
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
