package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Collection names in the galynx database.
const (
	collWorkspaces      = "workspaces"
	collAuthUsers       = "auth_users"
	collMemberships     = "auth_memberships"
	collRefreshSessions = "refresh_sessions"
	collChannels        = "channels"
	collChannelMembers  = "channel_members"
	collMessages        = "messages"
	collReactions       = "reactions"
	collAttachments     = "attachments"
	collPendingUploads  = "pending_uploads"
	collAuditLog        = "audit_log"
	collWsDedup         = "ws_dedup"
)

// mirror is the document-store write-through. UUIDs are stored as their
// canonical string form so documents stay readable and filterable from mongo
// tooling. Upserts are delete-then-insert by _id, which makes replays of the
// same write idempotent.
type mirror struct {
	db  *mongo.Database
	log zerolog.Logger
}

func (m *mirror) upsert(ctx context.Context, coll, id string, doc any) error {
	c := m.db.Collection(coll)
	if _, err := c.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", coll, id, err)
	}
	if _, err := c.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert %s/%s: %w", coll, id, err)
	}
	return nil
}

func (m *mirror) delete(ctx context.Context, coll, id string) error {
	if _, err := m.db.Collection(coll).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", coll, id, err)
	}
	return nil
}

// findOne decodes a single document into out. The second return reports
// whether a document was found.
func (m *mirror) findOne(ctx context.Context, coll string, filter bson.M, out any) (bool, error) {
	err := m.db.Collection(coll).FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find one %s: %w", coll, err)
	}
	return true, nil
}

func findAll[T any](ctx context.Context, m *mirror, coll string, filter bson.M) ([]T, error) {
	cur, err := m.db.Collection(coll).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", coll, err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", coll, err)
	}
	return out, nil
}

// parseID converts a stored string UUID back to its typed form. A corrupt id
// is a deserialization error, which callers treat as a mirror miss.
func parseID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse stored id %q: %w", value, err)
	}
	return id, nil
}

func parseOptionalID(value *string) (*uuid.UUID, error) {
	if value == nil {
		return nil, nil
	}
	id, err := parseID(*value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalIDString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// Workspaces

type workspaceDoc struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	CreatedBy string `bson:"created_by"`
	CreatedAt int64  `bson:"created_at"`
}

func (m *mirror) upsertWorkspace(ctx context.Context, rec Workspace) error {
	return m.upsert(ctx, collWorkspaces, rec.ID.String(), workspaceDoc{
		ID:        rec.ID.String(),
		Name:      rec.Name,
		CreatedBy: rec.CreatedBy.String(),
		CreatedAt: rec.CreatedAt,
	})
}

func (m *mirror) getWorkspace(ctx context.Context, id uuid.UUID) (Workspace, bool, error) {
	var doc workspaceDoc
	ok, err := m.findOne(ctx, collWorkspaces, bson.M{"_id": id.String()}, &doc)
	if err != nil || !ok {
		return Workspace{}, false, err
	}
	return workspaceFromDoc(doc)
}

func workspaceFromDoc(doc workspaceDoc) (Workspace, bool, error) {
	id, err := parseID(doc.ID)
	if err != nil {
		return Workspace{}, false, err
	}
	createdBy, err := parseID(doc.CreatedBy)
	if err != nil {
		return Workspace{}, false, err
	}
	return Workspace{ID: id, Name: doc.Name, CreatedBy: createdBy, CreatedAt: doc.CreatedAt}, true, nil
}

// Auth users

type authUserDoc struct {
	ID           string `bson:"_id"`
	Email        string `bson:"email"`
	Name         string `bson:"name"`
	PasswordHash string `bson:"password_hash"`
}

func (m *mirror) upsertAuthUser(ctx context.Context, rec AuthUser) error {
	return m.upsert(ctx, collAuthUsers, rec.ID.String(), authUserDoc{
		ID:           rec.ID.String(),
		Email:        rec.Email,
		Name:         rec.Name,
		PasswordHash: rec.PasswordHash,
	})
}

func (m *mirror) getAuthUserByID(ctx context.Context, id uuid.UUID) (AuthUser, bool, error) {
	var doc authUserDoc
	ok, err := m.findOne(ctx, collAuthUsers, bson.M{"_id": id.String()}, &doc)
	if err != nil || !ok {
		return AuthUser{}, false, err
	}
	return authUserFromDoc(doc)
}

func (m *mirror) getAuthUserByEmail(ctx context.Context, email string) (AuthUser, bool, error) {
	var doc authUserDoc
	ok, err := m.findOne(ctx, collAuthUsers, bson.M{"email": email}, &doc)
	if err != nil || !ok {
		return AuthUser{}, false, err
	}
	return authUserFromDoc(doc)
}

func authUserFromDoc(doc authUserDoc) (AuthUser, bool, error) {
	id, err := parseID(doc.ID)
	if err != nil {
		return AuthUser{}, false, err
	}
	return AuthUser{ID: id, Email: doc.Email, Name: doc.Name, PasswordHash: doc.PasswordHash}, true, nil
}

// Memberships

type membershipDoc struct {
	ID          string `bson:"_id"`
	WorkspaceID string `bson:"workspace_id"`
	UserID      string `bson:"user_id"`
	Role        string `bson:"role"`
}

func (m *mirror) upsertMembership(ctx context.Context, rec Membership) error {
	key := membershipKey(rec.WorkspaceID, rec.UserID)
	return m.upsert(ctx, collMemberships, key, membershipDoc{
		ID:          key,
		WorkspaceID: rec.WorkspaceID.String(),
		UserID:      rec.UserID.String(),
		Role:        rec.Role,
	})
}

func (m *mirror) getMembership(ctx context.Context, workspaceID, userID uuid.UUID) (Membership, bool, error) {
	var doc membershipDoc
	ok, err := m.findOne(ctx, collMemberships, bson.M{"_id": membershipKey(workspaceID, userID)}, &doc)
	if err != nil || !ok {
		return Membership{}, false, err
	}
	rec, err := membershipFromDoc(doc)
	if err != nil {
		return Membership{}, false, err
	}
	return rec, true, nil
}

func (m *mirror) listMemberships(ctx context.Context, field string, id uuid.UUID) ([]Membership, error) {
	docs, err := findAll[membershipDoc](ctx, m, collMemberships, bson.M{field: id.String()})
	if err != nil {
		return nil, err
	}
	out := make([]Membership, 0, len(docs))
	for _, doc := range docs {
		rec, err := membershipFromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func membershipFromDoc(doc membershipDoc) (Membership, error) {
	workspaceID, err := parseID(doc.WorkspaceID)
	if err != nil {
		return Membership{}, err
	}
	userID, err := parseID(doc.UserID)
	if err != nil {
		return Membership{}, err
	}
	return Membership{WorkspaceID: workspaceID, UserID: userID, Role: doc.Role}, nil
}

// Refresh sessions

type refreshSessionDoc struct {
	ID             string  `bson:"_id"`
	UserID         string  `bson:"user_id"`
	ExpiresAt      int64   `bson:"expires_at"`
	RevokedAt      *int64  `bson:"revoked_at,omitempty"`
	ReplacedByHash *string `bson:"replaced_by_hash,omitempty"`
}

func (m *mirror) upsertRefreshSession(ctx context.Context, rec RefreshSession) error {
	return m.upsert(ctx, collRefreshSessions, rec.TokenHash, refreshSessionDoc{
		ID:             rec.TokenHash,
		UserID:         rec.UserID.String(),
		ExpiresAt:      rec.ExpiresAt,
		RevokedAt:      rec.RevokedAt,
		ReplacedByHash: rec.ReplacedByHash,
	})
}

func (m *mirror) getRefreshSession(ctx context.Context, tokenHash string) (RefreshSession, bool, error) {
	var doc refreshSessionDoc
	ok, err := m.findOne(ctx, collRefreshSessions, bson.M{"_id": tokenHash}, &doc)
	if err != nil || !ok {
		return RefreshSession{}, false, err
	}
	userID, err := parseID(doc.UserID)
	if err != nil {
		return RefreshSession{}, false, err
	}
	return RefreshSession{
		TokenHash:      doc.ID,
		UserID:         userID,
		ExpiresAt:      doc.ExpiresAt,
		RevokedAt:      doc.RevokedAt,
		ReplacedByHash: doc.ReplacedByHash,
	}, true, nil
}

// Channels

type channelDoc struct {
	ID          string `bson:"_id"`
	WorkspaceID string `bson:"workspace_id"`
	Name        string `bson:"name"`
	IsPrivate   bool   `bson:"is_private"`
	CreatedBy   string `bson:"created_by"`
	CreatedAt   int64  `bson:"created_at"`
}

func (m *mirror) upsertChannel(ctx context.Context, rec Channel) error {
	return m.upsert(ctx, collChannels, rec.ID.String(), channelDoc{
		ID:          rec.ID.String(),
		WorkspaceID: rec.WorkspaceID.String(),
		Name:        rec.Name,
		IsPrivate:   rec.IsPrivate,
		CreatedBy:   rec.CreatedBy.String(),
		CreatedAt:   rec.CreatedAt,
	})
}

func (m *mirror) getChannel(ctx context.Context, id uuid.UUID) (Channel, bool, error) {
	var doc channelDoc
	ok, err := m.findOne(ctx, collChannels, bson.M{"_id": id.String()}, &doc)
	if err != nil || !ok {
		return Channel{}, false, err
	}
	rec, err := channelFromDoc(doc)
	if err != nil {
		return Channel{}, false, err
	}
	return rec, true, nil
}

func (m *mirror) listChannels(ctx context.Context, workspaceID uuid.UUID) ([]Channel, error) {
	docs, err := findAll[channelDoc](ctx, m, collChannels, bson.M{"workspace_id": workspaceID.String()})
	if err != nil {
		return nil, err
	}
	out := make([]Channel, 0, len(docs))
	for _, doc := range docs {
		rec, err := channelFromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *mirror) deleteChannel(ctx context.Context, id uuid.UUID) error {
	return m.delete(ctx, collChannels, id.String())
}

func channelFromDoc(doc channelDoc) (Channel, error) {
	id, err := parseID(doc.ID)
	if err != nil {
		return Channel{}, err
	}
	workspaceID, err := parseID(doc.WorkspaceID)
	if err != nil {
		return Channel{}, err
	}
	createdBy, err := parseID(doc.CreatedBy)
	if err != nil {
		return Channel{}, err
	}
	return Channel{
		ID:          id,
		WorkspaceID: workspaceID,
		Name:        doc.Name,
		IsPrivate:   doc.IsPrivate,
		CreatedBy:   createdBy,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

// Channel members

type channelMemberDoc struct {
	ID        string `bson:"_id"`
	ChannelID string `bson:"channel_id"`
	UserID    string `bson:"user_id"`
}

func (m *mirror) upsertChannelMember(ctx context.Context, rec ChannelMember) error {
	key := channelMemberKey(rec.ChannelID, rec.UserID)
	return m.upsert(ctx, collChannelMembers, key, channelMemberDoc{
		ID:        key,
		ChannelID: rec.ChannelID.String(),
		UserID:    rec.UserID.String(),
	})
}

func (m *mirror) getChannelMember(ctx context.Context, channelID, userID uuid.UUID) (ChannelMember, bool, error) {
	var doc channelMemberDoc
	ok, err := m.findOne(ctx, collChannelMembers, bson.M{"_id": channelMemberKey(channelID, userID)}, &doc)
	if err != nil || !ok {
		return ChannelMember{}, false, err
	}
	return ChannelMember{ChannelID: channelID, UserID: userID}, true, nil
}

func (m *mirror) listChannelMembers(ctx context.Context, channelID uuid.UUID) ([]ChannelMember, error) {
	docs, err := findAll[channelMemberDoc](ctx, m, collChannelMembers, bson.M{"channel_id": channelID.String()})
	if err != nil {
		return nil, err
	}
	out := make([]ChannelMember, 0, len(docs))
	for _, doc := range docs {
		userID, err := parseID(doc.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, ChannelMember{ChannelID: channelID, UserID: userID})
	}
	return out, nil
}

func (m *mirror) deleteChannelMember(ctx context.Context, channelID, userID uuid.UUID) error {
	return m.delete(ctx, collChannelMembers, channelMemberKey(channelID, userID))
}

func (m *mirror) deleteChannelMembers(ctx context.Context, channelID uuid.UUID) error {
	_, err := m.db.Collection(collChannelMembers).DeleteMany(ctx, bson.M{"channel_id": channelID.String()})
	if err != nil {
		return fmt.Errorf("delete channel members %s: %w", channelID, err)
	}
	return nil
}

// Messages

type messageDoc struct {
	ID           string  `bson:"_id"`
	WorkspaceID  string  `bson:"workspace_id"`
	ChannelID    string  `bson:"channel_id"`
	SenderID     string  `bson:"sender_id"`
	BodyMD       string  `bson:"body_md"`
	ThreadRootID *string `bson:"thread_root_id,omitempty"`
	CreatedAt    int64   `bson:"created_at"`
	EditedAt     *int64  `bson:"edited_at,omitempty"`
	DeletedAt    *int64  `bson:"deleted_at,omitempty"`
}

func (m *mirror) upsertMessage(ctx context.Context, rec Message) error {
	return m.upsert(ctx, collMessages, rec.ID.String(), messageDoc{
		ID:           rec.ID.String(),
		WorkspaceID:  rec.WorkspaceID.String(),
		ChannelID:    rec.ChannelID.String(),
		SenderID:     rec.SenderID.String(),
		BodyMD:       rec.BodyMD,
		ThreadRootID: optionalIDString(rec.ThreadRootID),
		CreatedAt:    rec.CreatedAt,
		EditedAt:     rec.EditedAt,
		DeletedAt:    rec.DeletedAt,
	})
}

func (m *mirror) getMessage(ctx context.Context, id uuid.UUID) (Message, bool, error) {
	var doc messageDoc
	ok, err := m.findOne(ctx, collMessages, bson.M{"_id": id.String()}, &doc)
	if err != nil || !ok {
		return Message{}, false, err
	}
	rec, err := messageFromDoc(doc)
	if err != nil {
		return Message{}, false, err
	}
	return rec, true, nil
}

func (m *mirror) listMessages(ctx context.Context, workspaceID uuid.UUID) ([]Message, error) {
	docs, err := findAll[messageDoc](ctx, m, collMessages, bson.M{"workspace_id": workspaceID.String()})
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(docs))
	for _, doc := range docs {
		rec, err := messageFromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *mirror) deleteMessagesForChannel(ctx context.Context, channelID uuid.UUID) error {
	_, err := m.db.Collection(collMessages).DeleteMany(ctx, bson.M{"channel_id": channelID.String()})
	if err != nil {
		return fmt.Errorf("delete channel messages %s: %w", channelID, err)
	}
	return nil
}

func messageFromDoc(doc messageDoc) (Message, error) {
	id, err := parseID(doc.ID)
	if err != nil {
		return Message{}, err
	}
	workspaceID, err := parseID(doc.WorkspaceID)
	if err != nil {
		return Message{}, err
	}
	channelID, err := parseID(doc.ChannelID)
	if err != nil {
		return Message{}, err
	}
	senderID, err := parseID(doc.SenderID)
	if err != nil {
		return Message{}, err
	}
	threadRootID, err := parseOptionalID(doc.ThreadRootID)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:           id,
		WorkspaceID:  workspaceID,
		ChannelID:    channelID,
		SenderID:     senderID,
		BodyMD:       doc.BodyMD,
		ThreadRootID: threadRootID,
		CreatedAt:    doc.CreatedAt,
		EditedAt:     doc.EditedAt,
		DeletedAt:    doc.DeletedAt,
	}, nil
}

// Reactions

type reactionDoc struct {
	ID        string `bson:"_id"`
	MessageID string `bson:"message_id"`
	Emoji     string `bson:"emoji"`
	UserID    string `bson:"user_id"`
}

func (m *mirror) upsertReaction(ctx context.Context, rec Reaction) error {
	key := reactionKey(rec.MessageID, rec.Emoji, rec.UserID)
	return m.upsert(ctx, collReactions, key, reactionDoc{
		ID:        key,
		MessageID: rec.MessageID.String(),
		Emoji:     rec.Emoji,
		UserID:    rec.UserID.String(),
	})
}

func (m *mirror) deleteReaction(ctx context.Context, messageID uuid.UUID, emoji string, userID uuid.UUID) error {
	return m.delete(ctx, collReactions, reactionKey(messageID, emoji, userID))
}

func (m *mirror) listReactionUsers(ctx context.Context, messageID uuid.UUID, emoji string) ([]uuid.UUID, error) {
	docs, err := findAll[reactionDoc](ctx, m, collReactions, bson.M{
		"message_id": messageID.String(),
		"emoji":      emoji,
	})
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(docs))
	for _, doc := range docs {
		userID, err := parseID(doc.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, userID)
	}
	return out, nil
}

// Attachments

type attachmentDoc struct {
	ID          string  `bson:"_id"`
	WorkspaceID string  `bson:"workspace_id"`
	ChannelID   string  `bson:"channel_id"`
	MessageID   *string `bson:"message_id,omitempty"`
	UploaderID  string  `bson:"uploader_id"`
	Filename    string  `bson:"filename"`
	ContentType string  `bson:"content_type"`
	SizeBytes   int64   `bson:"size_bytes"`
	Bucket      string  `bson:"bucket"`
	Key         string  `bson:"key"`
	Region      string  `bson:"region"`
	CreatedAt   int64   `bson:"created_at"`
}

func (m *mirror) upsertAttachment(ctx context.Context, rec Attachment) error {
	return m.upsert(ctx, collAttachments, rec.ID.String(), attachmentDoc{
		ID:          rec.ID.String(),
		WorkspaceID: rec.WorkspaceID.String(),
		ChannelID:   rec.ChannelID.String(),
		MessageID:   optionalIDString(rec.MessageID),
		UploaderID:  rec.UploaderID.String(),
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
		SizeBytes:   rec.SizeBytes,
		Bucket:      rec.Bucket,
		Key:         rec.Key,
		Region:      rec.Region,
		CreatedAt:   rec.CreatedAt,
	})
}

func (m *mirror) getAttachment(ctx context.Context, id uuid.UUID) (Attachment, bool, error) {
	var doc attachmentDoc
	ok, err := m.findOne(ctx, collAttachments, bson.M{"_id": id.String()}, &doc)
	if err != nil || !ok {
		return Attachment{}, false, err
	}
	rec, err := attachmentFromDoc(doc)
	if err != nil {
		return Attachment{}, false, err
	}
	return rec, true, nil
}

func attachmentFromDoc(doc attachmentDoc) (Attachment, error) {
	id, err := parseID(doc.ID)
	if err != nil {
		return Attachment{}, err
	}
	workspaceID, err := parseID(doc.WorkspaceID)
	if err != nil {
		return Attachment{}, err
	}
	channelID, err := parseID(doc.ChannelID)
	if err != nil {
		return Attachment{}, err
	}
	messageID, err := parseOptionalID(doc.MessageID)
	if err != nil {
		return Attachment{}, err
	}
	uploaderID, err := parseID(doc.UploaderID)
	if err != nil {
		return Attachment{}, err
	}
	return Attachment{
		ID:          id,
		WorkspaceID: workspaceID,
		ChannelID:   channelID,
		MessageID:   messageID,
		UploaderID:  uploaderID,
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		SizeBytes:   doc.SizeBytes,
		Bucket:      doc.Bucket,
		Key:         doc.Key,
		Region:      doc.Region,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

// Pending uploads

type pendingUploadDoc struct {
	ID          string `bson:"_id"`
	WorkspaceID string `bson:"workspace_id"`
	ChannelID   string `bson:"channel_id"`
	UploaderID  string `bson:"uploader_id"`
	Filename    string `bson:"filename"`
	ContentType string `bson:"content_type"`
	SizeBytes   int64  `bson:"size_bytes"`
	StorageKey  string `bson:"storage_key"`
	ExpiresAt   int64  `bson:"expires_at"`
	CreatedAt   int64  `bson:"created_at"`
}

func (m *mirror) upsertPendingUpload(ctx context.Context, rec PendingUpload) error {
	return m.upsert(ctx, collPendingUploads, rec.UploadID.String(), pendingUploadDoc{
		ID:          rec.UploadID.String(),
		WorkspaceID: rec.WorkspaceID.String(),
		ChannelID:   rec.ChannelID.String(),
		UploaderID:  rec.UploaderID.String(),
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
		SizeBytes:   rec.SizeBytes,
		StorageKey:  rec.StorageKey,
		ExpiresAt:   rec.ExpiresAt,
		CreatedAt:   rec.CreatedAt,
	})
}

// takePendingUpload atomically removes and returns the document, keeping the
// single-consumer property across instances sharing the mirror.
func (m *mirror) takePendingUpload(ctx context.Context, uploadID uuid.UUID) (PendingUpload, bool, error) {
	var doc pendingUploadDoc
	err := m.db.Collection(collPendingUploads).
		FindOneAndDelete(ctx, bson.M{"_id": uploadID.String()}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return PendingUpload{}, false, nil
	}
	if err != nil {
		return PendingUpload{}, false, fmt.Errorf("take pending upload %s: %w", uploadID, err)
	}
	rec, err := pendingUploadFromDoc(doc)
	if err != nil {
		return PendingUpload{}, false, err
	}
	return rec, true, nil
}

func pendingUploadFromDoc(doc pendingUploadDoc) (PendingUpload, error) {
	uploadID, err := parseID(doc.ID)
	if err != nil {
		return PendingUpload{}, err
	}
	workspaceID, err := parseID(doc.WorkspaceID)
	if err != nil {
		return PendingUpload{}, err
	}
	channelID, err := parseID(doc.ChannelID)
	if err != nil {
		return PendingUpload{}, err
	}
	uploaderID, err := parseID(doc.UploaderID)
	if err != nil {
		return PendingUpload{}, err
	}
	return PendingUpload{
		UploadID:    uploadID,
		WorkspaceID: workspaceID,
		ChannelID:   channelID,
		UploaderID:  uploaderID,
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		SizeBytes:   doc.SizeBytes,
		StorageKey:  doc.StorageKey,
		ExpiresAt:   doc.ExpiresAt,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

// Audit log

type auditEntryDoc struct {
	ID          string         `bson:"_id"`
	WorkspaceID string         `bson:"workspace_id"`
	ActorID     *string        `bson:"actor_id,omitempty"`
	Action      string         `bson:"action"`
	TargetType  string         `bson:"target_type"`
	TargetID    *string        `bson:"target_id,omitempty"`
	Metadata    map[string]any `bson:"metadata"`
	CreatedAt   int64          `bson:"created_at"`
}

func (m *mirror) upsertAuditEntry(ctx context.Context, rec AuditEntry) error {
	return m.upsert(ctx, collAuditLog, rec.ID.String(), auditEntryDoc{
		ID:          rec.ID.String(),
		WorkspaceID: rec.WorkspaceID.String(),
		ActorID:     optionalIDString(rec.ActorID),
		Action:      rec.Action,
		TargetType:  rec.TargetType,
		TargetID:    rec.TargetID,
		Metadata:    rec.Metadata,
		CreatedAt:   rec.CreatedAt,
	})
}

func (m *mirror) listAuditEntries(ctx context.Context, workspaceID uuid.UUID) ([]AuditEntry, error) {
	docs, err := findAll[auditEntryDoc](ctx, m, collAuditLog, bson.M{"workspace_id": workspaceID.String()})
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(docs))
	for _, doc := range docs {
		id, err := parseID(doc.ID)
		if err != nil {
			return nil, err
		}
		actorID, err := parseOptionalID(doc.ActorID)
		if err != nil {
			return nil, err
		}
		out = append(out, AuditEntry{
			ID:          id,
			WorkspaceID: workspaceID,
			ActorID:     actorID,
			Action:      doc.Action,
			TargetType:  doc.TargetType,
			TargetID:    doc.TargetID,
			Metadata:    doc.Metadata,
			CreatedAt:   doc.CreatedAt,
		})
	}
	return out, nil
}

// WS command dedup

type dedupDoc struct {
	ID        string  `bson:"_id"`
	MessageID *string `bson:"message_id,omitempty"`
}

func (m *mirror) upsertDedup(ctx context.Context, key string, messageID *uuid.UUID) error {
	return m.upsert(ctx, collWsDedup, key, dedupDoc{
		ID:        key,
		MessageID: optionalIDString(messageID),
	})
}

func (m *mirror) getDedup(ctx context.Context, key string) (*uuid.UUID, bool, error) {
	var doc dedupDoc
	ok, err := m.findOne(ctx, collWsDedup, bson.M{"_id": key}, &doc)
	if err != nil || !ok {
		return nil, false, err
	}
	messageID, err := parseOptionalID(doc.MessageID)
	if err != nil {
		return nil, false, err
	}
	return messageID, true, nil
}
