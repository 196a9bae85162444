package attachment

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// StorageKey builds the object key for an upload. The filename is sanitized
// so keys stay safe for any S3-compatible backend.
func StorageKey(workspaceID, channelID, uploadID uuid.UUID, filename string) string {
	return fmt.Sprintf("workspace/%s/channel/%s/uploads/%s-%s", workspaceID, channelID, uploadID, sanitizeFilename(filename))
}

// sanitizeFilename replaces every byte outside [A-Za-z0-9._-] with an
// underscore.
func sanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
