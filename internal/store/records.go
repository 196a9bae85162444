// Package store is the persistence layer. An in-process memory store is
// authoritative; when the mongo backend is selected every write is mirrored to
// the document store and reads prefer it, falling back to memory on any error.
package store

import (
	"fmt"

	"github.com/google/uuid"
)

// Workspace is the top-level tenant boundary.
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt int64     `json:"created_at"`
}

// AuthUser is a login identity. The password hash never serializes to JSON.
type AuthUser struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
}

// Membership binds a user to a workspace with a role.
type Membership struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	UserID      uuid.UUID `json:"user_id"`
	Role        string    `json:"role"`
}

// RefreshSession tracks one refresh token by the SHA-256 hex of its value.
// Once ReplacedByHash is set the session is terminal.
type RefreshSession struct {
	TokenHash      string
	UserID         uuid.UUID
	ExpiresAt      int64 // unix seconds
	RevokedAt      *int64
	ReplacedByHash *string
}

// Channel is a named conversation inside a workspace. Names are stored
// lowercased and are unique per workspace.
type Channel struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Name        string    `json:"name"`
	IsPrivate   bool      `json:"is_private"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   int64     `json:"created_at"`
}

// ChannelMember grants a member-role user access to a private channel.
type ChannelMember struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// Message is a channel message. DeletedAt marks a soft delete: the message is
// filtered from listings but the record is retained for back-references.
type Message struct {
	ID           uuid.UUID  `json:"id"`
	WorkspaceID  uuid.UUID  `json:"workspace_id"`
	ChannelID    uuid.UUID  `json:"channel_id"`
	SenderID     uuid.UUID  `json:"sender_id"`
	BodyMD       string     `json:"body_md"`
	ThreadRootID *uuid.UUID `json:"thread_root_id,omitempty"`
	CreatedAt    int64      `json:"created_at"`
	EditedAt     *int64     `json:"edited_at,omitempty"`
	DeletedAt    *int64     `json:"deleted_at,omitempty"`
}

// Reaction is one (message, emoji, user) tuple. The triple is the identity, so
// adds are naturally idempotent.
type Reaction struct {
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
	UserID    uuid.UUID `json:"user_id"`
}

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID          uuid.UUID      `json:"id"`
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	ActorID     *uuid.UUID     `json:"actor_id,omitempty"`
	Action      string         `json:"action"`
	TargetType  string         `json:"target_type"`
	TargetID    *string        `json:"target_id,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   int64          `json:"created_at"`
}

// PendingUpload is the single-use first half of the presign/commit attachment
// flow.
type PendingUpload struct {
	UploadID    uuid.UUID `json:"upload_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	ChannelID   uuid.UUID `json:"channel_id"`
	UploaderID  uuid.UUID `json:"uploader_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	ExpiresAt   int64     `json:"expires_at"` // unix seconds
	CreatedAt   int64     `json:"created_at"`
}

// Attachment is an immutable committed upload.
type Attachment struct {
	ID          uuid.UUID  `json:"id"`
	WorkspaceID uuid.UUID  `json:"workspace_id"`
	ChannelID   uuid.UUID  `json:"channel_id"`
	MessageID   *uuid.UUID `json:"message_id,omitempty"`
	UploaderID  uuid.UUID  `json:"uploader_id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	Bucket      string     `json:"bucket"`
	Key         string     `json:"key"`
	Region      string     `json:"region"`
	CreatedAt   int64      `json:"created_at"`
}

// Composite keys used by the memory maps and as mongo _id values.

func membershipKey(workspaceID, userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", workspaceID, userID)
}

func channelMemberKey(channelID, userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", channelID, userID)
}

func reactionKey(messageID uuid.UUID, emoji string, userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", messageID, emoji, userID)
}
