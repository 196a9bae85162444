package store

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/galynx/galynx-server/internal/apperr"
)

// Cursor is a pagination anchor over the (created_at, id) ordering used by
// message and audit listings. The id participates in comparisons as a 128-bit
// unsigned integer so that time-ordered UUIDs co-sort with their timestamps.
type Cursor struct {
	CreatedAt int64
	ID        uuid.UUID
}

// FormatCursor serializes the anchor as "<created_at_ms>:<id_as_u128>".
func FormatCursor(createdAt int64, id uuid.UUID) string {
	n := new(big.Int).SetBytes(id[:])
	return fmt.Sprintf("%d:%s", createdAt, n.String())
}

// ParseCursor parses a serialized cursor. Malformed input is a BadRequest.
func ParseCursor(raw string) (Cursor, error) {
	ts, idPart, ok := strings.Cut(raw, ":")
	if !ok {
		return Cursor{}, apperr.BadRequest("invalid cursor: missing id")
	}

	createdAt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Cursor{}, apperr.BadRequest("invalid cursor: invalid timestamp")
	}

	n, ok := new(big.Int).SetString(idPart, 10)
	if !ok || n.Sign() < 0 || n.BitLen() > 128 {
		return Cursor{}, apperr.BadRequest("invalid cursor: invalid id")
	}

	var id uuid.UUID
	n.FillBytes(id[:])

	return Cursor{CreatedAt: createdAt, ID: id}, nil
}

// Contains reports whether an entry at (createdAt, id) is strictly before the
// cursor in descending order. Cursors exclude their own anchor.
func (c Cursor) Contains(createdAt int64, id uuid.UUID) bool {
	if createdAt != c.CreatedAt {
		return createdAt < c.CreatedAt
	}
	return compareIDs(id, c.ID) < 0
}

// CompareDesc orders two entries by (created_at DESC, id_u128 DESC). It
// returns a negative value when a sorts before b.
func CompareDesc(aCreatedAt int64, aID uuid.UUID, bCreatedAt int64, bID uuid.UUID) int {
	if aCreatedAt != bCreatedAt {
		if aCreatedAt > bCreatedAt {
			return -1
		}
		return 1
	}
	return -compareIDs(aID, bID)
}

// compareIDs compares two UUIDs as big-endian 128-bit unsigned integers.
func compareIDs(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// DefaultLimit and MaxLimit bound page sizes for cursor listings.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ClampLimit normalizes a requested page size: zero or negative values fall
// back to the default, values above the maximum are capped.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
