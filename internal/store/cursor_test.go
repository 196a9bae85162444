package store

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/galynx/galynx-server/internal/apperr"
)

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	raw := FormatCursor(1700000000123, id)

	cursor, err := ParseCursor(raw)
	if err != nil {
		t.Fatalf("ParseCursor(%q) returned error: %v", raw, err)
	}
	if cursor.CreatedAt != 1700000000123 {
		t.Errorf("CreatedAt = %d, want 1700000000123", cursor.CreatedAt)
	}
	if cursor.ID != id {
		t.Errorf("ID = %s, want %s", cursor.ID, id)
	}
}

func TestParseCursorRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "123", "abc:123", "123:abc", "123:-5"} {
		_, err := ParseCursor(raw)
		if err == nil {
			t.Errorf("ParseCursor(%q) = nil error, want bad request", raw)
			continue
		}
		var appErr *apperr.Error
		if !errors.As(err, &appErr) || appErr.Code != apperr.CodeBadRequest {
			t.Errorf("ParseCursor(%q) error = %v, want bad_request", raw, err)
		}
	}
}

func TestCursorExcludesAnchor(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	cursor := Cursor{CreatedAt: 100, ID: id}

	if cursor.Contains(100, id) {
		t.Error("cursor includes its own anchor")
	}
	if !cursor.Contains(99, id) {
		t.Error("cursor excludes an older entry")
	}
	if cursor.Contains(101, id) {
		t.Error("cursor includes a newer entry")
	}
}

func TestCompareDescOrdersByTimestampThenID(t *testing.T) {
	t.Parallel()

	older := uuid.MustParse("00000000-0000-7000-8000-000000000001")
	newer := uuid.MustParse("00000000-0000-7000-8000-000000000002")

	if CompareDesc(200, older, 100, newer) >= 0 {
		t.Error("newer timestamp does not sort first")
	}
	if CompareDesc(100, newer, 100, older) >= 0 {
		t.Error("larger id does not break the tie first")
	}
	if CompareDesc(100, older, 100, older) != 0 {
		t.Error("identical entries do not compare equal")
	}
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int
		want int
	}{
		{0, DefaultLimit},
		{-3, DefaultLimit},
		{1, 1},
		{70, 70},
		{100, 100},
		{500, MaxLimit},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
