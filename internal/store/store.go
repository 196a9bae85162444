package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Backend names. Open accepts the canonical values produced by config.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
)

const databaseName = "galynx"

// Store holds all persistent entities. The in-process maps are authoritative;
// the mongo mirror, when present, receives every write and is preferred for
// reads with memory as the fallback. Each table has its own lock and no
// operation ever holds two locks at once.
type Store struct {
	backend string
	mirror  *mirror
	client  *mongo.Client
	log     zerolog.Logger

	workspacesMu sync.RWMutex
	workspaces   map[uuid.UUID]Workspace

	usersMu      sync.RWMutex
	users        map[uuid.UUID]AuthUser
	usersByEmail map[string]uuid.UUID

	membershipsMu sync.RWMutex
	memberships   map[string]Membership

	sessionsMu sync.RWMutex
	sessions   map[string]RefreshSession

	channelsMu sync.RWMutex
	channels   map[uuid.UUID]Channel

	channelMembersMu sync.RWMutex
	channelMembers   map[string]ChannelMember

	messagesMu sync.RWMutex
	messages   map[uuid.UUID]Message

	reactionsMu sync.RWMutex
	reactions   map[string]Reaction

	attachmentsMu sync.RWMutex
	attachments   map[uuid.UUID]Attachment

	pendingMu sync.RWMutex
	pending   map[uuid.UUID]PendingUpload

	auditMu sync.RWMutex
	audit   map[uuid.UUID][]AuditEntry

	dedupMu   sync.RWMutex
	sendDedup map[string]uuid.UUID
	onceDedup map[string]struct{}
}

// Open creates a Store for the given backend. For the mongo backend it
// connects and pings before returning; a failed connection is a startup error,
// not a degraded mode.
func Open(ctx context.Context, backend, mongoURI string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		backend:        backend,
		log:            logger.With().Str("component", "store").Logger(),
		workspaces:     make(map[uuid.UUID]Workspace),
		users:          make(map[uuid.UUID]AuthUser),
		usersByEmail:   make(map[string]uuid.UUID),
		memberships:    make(map[string]Membership),
		sessions:       make(map[string]RefreshSession),
		channels:       make(map[uuid.UUID]Channel),
		channelMembers: make(map[string]ChannelMember),
		messages:       make(map[uuid.UUID]Message),
		reactions:      make(map[string]Reaction),
		attachments:    make(map[uuid.UUID]Attachment),
		pending:        make(map[uuid.UUID]PendingUpload),
		audit:          make(map[uuid.UUID][]AuditEntry),
		sendDedup:      make(map[string]uuid.UUID),
		onceDedup:      make(map[string]struct{}),
	}

	if backend != BackendMongo {
		return s, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s.client = client
	s.mirror = &mirror{db: client.Database(databaseName), log: s.log}
	return s, nil
}

// Backend returns the configured backend name.
func (s *Store) Backend() string {
	return s.backend
}

// Ping verifies the persistence mirror is reachable. The memory backend is
// always ready.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the mongo client when one is open.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// mirrorWrite runs a mirror operation and logs failures without surfacing
// them: memory already holds the write and stays authoritative.
func (s *Store) mirrorWrite(op string, fn func(m *mirror) error) {
	if s.mirror == nil {
		return
	}
	if err := fn(s.mirror); err != nil {
		s.log.Warn().Err(err).Str("op", op).Msg("Mirror write failed, memory state remains authoritative")
	}
}

// Workspaces

func (s *Store) PutWorkspace(ctx context.Context, rec Workspace) {
	s.workspacesMu.Lock()
	s.workspaces[rec.ID] = rec
	s.workspacesMu.Unlock()

	s.mirrorWrite("put_workspace", func(m *mirror) error { return m.upsertWorkspace(ctx, rec) })
}

func (s *Store) GetWorkspace(ctx context.Context, id uuid.UUID) (Workspace, bool) {
	if s.mirror != nil {
		if rec, ok, err := s.mirror.getWorkspace(ctx, id); err == nil {
			return rec, ok
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.workspacesMu.RLock()
	defer s.workspacesMu.RUnlock()
	rec, ok := s.workspaces[id]
	return rec, ok
}

// Auth users

func (s *Store) PutAuthUser(ctx context.Context, rec AuthUser) {
	s.usersMu.Lock()
	s.users[rec.ID] = rec
	s.usersByEmail[rec.Email] = rec.ID
	s.usersMu.Unlock()

	s.mirrorWrite("put_auth_user", func(m *mirror) error { return m.upsertAuthUser(ctx, rec) })
}

func (s *Store) GetAuthUserByID(ctx context.Context, id uuid.UUID) (AuthUser, bool) {
	if s.mirror != nil {
		if rec, ok, err := s.mirror.getAuthUserByID(ctx, id); err == nil {
			return rec, ok
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	rec, ok := s.users[id]
	return rec, ok
}

func (s *Store) GetAuthUserByEmail(ctx context.Context, email string) (AuthUser, bool) {
	if s.mirror != nil {
		if rec, ok, err := s.mirror.getAuthUserByEmail(ctx, email); err == nil {
			return rec, ok
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	id, ok := s.usersByEmail[email]
	if !ok {
		return AuthUser{}, false
	}
	rec, ok := s.users[id]
	return rec, ok
}

// Memberships

func (s *Store) PutMembershipRole(ctx context.Context, workspaceID, userID uuid.UUID, role string) {
	rec := Membership{WorkspaceID: workspaceID, UserID: userID, Role: role}

	s.membershipsMu.Lock()
	s.memberships[membershipKey(workspaceID, userID)] = rec
	s.membershipsMu.Unlock()

	s.mirrorWrite("put_membership", func(m *mirror) error { return m.upsertMembership(ctx, rec) })
}

func (s *Store) GetMembershipRole(ctx context.Context, workspaceID, userID uuid.UUID) (string, bool) {
	if s.mirror != nil {
		if rec, ok, err := s.mirror.getMembership(ctx, workspaceID, userID); err == nil {
			return rec.Role, ok
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.membershipsMu.RLock()
	defer s.membershipsMu.RUnlock()
	rec, ok := s.memberships[membershipKey(workspaceID, userID)]
	return rec.Role, ok
}

// FindPrimaryMembership returns one of the user's memberships. When a user
// belongs to several workspaces the choice is unspecified; callers must not
// rely on which one is returned.
func (s *Store) FindPrimaryMembership(ctx context.Context, userID uuid.UUID) (Membership, bool) {
	memberships := s.ListUserMemberships(ctx, userID)
	if len(memberships) == 0 {
		return Membership{}, false
	}
	return memberships[0], true
}

func (s *Store) ListWorkspaceMemberships(ctx context.Context, workspaceID uuid.UUID) []Membership {
	if s.mirror != nil {
		if recs, err := s.mirror.listMemberships(ctx, "workspace_id", workspaceID); err == nil {
			return recs
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.membershipsMu.RLock()
	defer s.membershipsMu.RUnlock()
	var out []Membership
	for _, rec := range s.memberships {
		if rec.WorkspaceID == workspaceID {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Store) ListUserMemberships(ctx context.Context, userID uuid.UUID) []Membership {
	if s.mirror != nil {
		if recs, err := s.mirror.listMemberships(ctx, "user_id", userID); err == nil {
			return recs
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.membershipsMu.RLock()
	defer s.membershipsMu.RUnlock()
	var out []Membership
	for _, rec := range s.memberships {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out
}

// Refresh sessions

func (s *Store) PutRefreshSession(ctx context.Context, rec RefreshSession) {
	s.sessionsMu.Lock()
	s.sessions[rec.TokenHash] = rec
	s.sessionsMu.Unlock()

	s.mirrorWrite("put_refresh_session", func(m *mirror) error { return m.upsertRefreshSession(ctx, rec) })
}

func (s *Store) GetRefreshSession(ctx context.Context, tokenHash string) (RefreshSession, bool) {
	if s.mirror != nil {
		if rec, ok, err := s.mirror.getRefreshSession(ctx, tokenHash); err == nil {
			return rec, ok
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	rec, ok := s.sessions[tokenHash]
	return rec, ok
}

// UpdateRefreshSession applies mutate to the session under the table lock so
// rotations for one token hash are linearized. A session that only exists in
// the mirror, as after a restart, is pulled into memory before mutating. It
// reports whether the session existed.
func (s *Store) UpdateRefreshSession(ctx context.Context, tokenHash string, mutate func(*RefreshSession)) bool {
	s.sessionsMu.Lock()
	rec, ok := s.sessions[tokenHash]
	if !ok && s.mirror != nil {
		mirrorRec, found, err := s.mirror.getRefreshSession(ctx, tokenHash)
		if err != nil {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
		rec, ok = mirrorRec, found
	}
	if !ok {
		s.sessionsMu.Unlock()
		return false
	}
	mutate(&rec)
	s.sessions[tokenHash] = rec
	s.sessionsMu.Unlock()

	s.mirrorWrite("update_refresh_session", func(m *mirror) error { return m.upsertRefreshSession(ctx, rec) })
	return true
}

// Channels

func (s *Store) PutChannel(ctx context.Context, rec Channel) {
	s.channelsMu.Lock()
	s.channels[rec.ID] = rec
	s.channelsMu.Unlock()

	s.mirrorWrite("put_channel", func(m *mirror) error { return m.upsertChannel(ctx, rec) })
}

func (s *Store) GetChannel(ctx context.Context, id uuid.UUID) (Channel, bool) {
	if s.mirror != nil {
		if rec, ok, err := s.mirror.getChannel(ctx, id); err == nil {
			return rec, ok
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.channelsMu.RLock()
	defer s.channelsMu.RUnlock()
	rec, ok := s.channels[id]
	return rec, ok
}

// ListChannels returns the workspace's channels sorted by (created_at ASC,
// id ASC).
func (s *Store) ListChannels(ctx context.Context, workspaceID uuid.UUID) []Channel {
	var out []Channel

	fromMirror := false
	if s.mirror != nil {
		if recs, err := s.mirror.listChannels(ctx, workspaceID); err == nil {
			out = recs
			fromMirror = true
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	if !fromMirror {
		s.channelsMu.RLock()
		for _, rec := range s.channels {
			if rec.WorkspaceID == workspaceID {
				out = append(out, rec)
			}
		}
		s.channelsMu.RUnlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return compareIDs(out[i].ID, out[j].ID) < 0
	})
	return out
}

// ChannelNameExists reports whether the workspace already has a channel with
// the given (lowercased) name.
func (s *Store) ChannelNameExists(ctx context.Context, workspaceID uuid.UUID, name string) bool {
	for _, rec := range s.ListChannels(ctx, workspaceID) {
		if rec.Name == name {
			return true
		}
	}
	return false
}

func (s *Store) RemoveChannel(ctx context.Context, id uuid.UUID) {
	s.channelsMu.Lock()
	delete(s.channels, id)
	s.channelsMu.Unlock()

	s.mirrorWrite("remove_channel", func(m *mirror) error { return m.deleteChannel(ctx, id) })
}

// Channel members

func (s *Store) AddChannelMember(ctx context.Context, channelID, userID uuid.UUID) {
	rec := ChannelMember{ChannelID: channelID, UserID: userID}

	s.channelMembersMu.Lock()
	s.channelMembers[channelMemberKey(channelID, userID)] = rec
	s.channelMembersMu.Unlock()

	s.mirrorWrite("add_channel_member", func(m *mirror) error { return m.upsertChannelMember(ctx, rec) })
}

func (s *Store) RemoveChannelMember(ctx context.Context, channelID, userID uuid.UUID) {
	s.channelMembersMu.Lock()
	delete(s.channelMembers, channelMemberKey(channelID, userID))
	s.channelMembersMu.Unlock()

	s.mirrorWrite("remove_channel_member", func(m *mirror) error { return m.deleteChannelMember(ctx, channelID, userID) })
}

func (s *Store) IsChannelMember(ctx context.Context, channelID, userID uuid.UUID) bool {
	if s.mirror != nil {
		if _, ok, err := s.mirror.getChannelMember(ctx, channelID, userID); err == nil {
			return ok
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.channelMembersMu.RLock()
	defer s.channelMembersMu.RUnlock()
	_, ok := s.channelMembers[channelMemberKey(channelID, userID)]
	return ok
}

func (s *Store) ListChannelMembers(ctx context.Context, channelID uuid.UUID) []ChannelMember {
	var out []ChannelMember

	fromMirror := false
	if s.mirror != nil {
		if recs, err := s.mirror.listChannelMembers(ctx, channelID); err == nil {
			out = recs
			fromMirror = true
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	if !fromMirror {
		s.channelMembersMu.RLock()
		for _, rec := range s.channelMembers {
			if rec.ChannelID == channelID {
				out = append(out, rec)
			}
		}
		s.channelMembersMu.RUnlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return compareIDs(out[i].UserID, out[j].UserID) < 0
	})
	return out
}

// RemoveChannelMembers deletes every membership row for a channel. Part of
// the channel delete cascade.
func (s *Store) RemoveChannelMembers(ctx context.Context, channelID uuid.UUID) {
	s.channelMembersMu.Lock()
	for key, rec := range s.channelMembers {
		if rec.ChannelID == channelID {
			delete(s.channelMembers, key)
		}
	}
	s.channelMembersMu.Unlock()

	s.mirrorWrite("remove_channel_members", func(m *mirror) error { return m.deleteChannelMembers(ctx, channelID) })
}

// Messages

func (s *Store) PutMessage(ctx context.Context, rec Message) {
	s.messagesMu.Lock()
	s.messages[rec.ID] = rec
	s.messagesMu.Unlock()

	s.mirrorWrite("put_message", func(m *mirror) error { return m.upsertMessage(ctx, rec) })
}

func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (Message, bool) {
	if s.mirror != nil {
		if rec, ok, err := s.mirror.getMessage(ctx, id); err == nil {
			return rec, ok
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.messagesMu.RLock()
	defer s.messagesMu.RUnlock()
	rec, ok := s.messages[id]
	return rec, ok
}

// ListMessages returns every message in a workspace, unsorted and including
// soft-deleted rows. Callers filter and order.
func (s *Store) ListMessages(ctx context.Context, workspaceID uuid.UUID) []Message {
	if s.mirror != nil {
		if recs, err := s.mirror.listMessages(ctx, workspaceID); err == nil {
			return recs
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.messagesMu.RLock()
	defer s.messagesMu.RUnlock()
	var out []Message
	for _, rec := range s.messages {
		if rec.WorkspaceID == workspaceID {
			out = append(out, rec)
		}
	}
	return out
}

// RemoveMessagesForChannel deletes all messages in a channel. Part of the
// channel delete cascade.
func (s *Store) RemoveMessagesForChannel(ctx context.Context, channelID uuid.UUID) {
	s.messagesMu.Lock()
	for id, rec := range s.messages {
		if rec.ChannelID == channelID {
			delete(s.messages, id)
		}
	}
	s.messagesMu.Unlock()

	s.mirrorWrite("remove_channel_messages", func(m *mirror) error { return m.deleteMessagesForChannel(ctx, channelID) })
}

// Reactions

func (s *Store) AddReaction(ctx context.Context, messageID uuid.UUID, emoji string, userID uuid.UUID) {
	rec := Reaction{MessageID: messageID, Emoji: emoji, UserID: userID}

	s.reactionsMu.Lock()
	s.reactions[reactionKey(messageID, emoji, userID)] = rec
	s.reactionsMu.Unlock()

	s.mirrorWrite("add_reaction", func(m *mirror) error { return m.upsertReaction(ctx, rec) })
}

func (s *Store) RemoveReaction(ctx context.Context, messageID uuid.UUID, emoji string, userID uuid.UUID) {
	s.reactionsMu.Lock()
	delete(s.reactions, reactionKey(messageID, emoji, userID))
	s.reactionsMu.Unlock()

	s.mirrorWrite("remove_reaction", func(m *mirror) error { return m.deleteReaction(ctx, messageID, emoji, userID) })
}

func (s *Store) ListReactionUsers(ctx context.Context, messageID uuid.UUID, emoji string) []uuid.UUID {
	if s.mirror != nil {
		if users, err := s.mirror.listReactionUsers(ctx, messageID, emoji); err == nil {
			return users
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.reactionsMu.RLock()
	defer s.reactionsMu.RUnlock()
	var out []uuid.UUID
	for _, rec := range s.reactions {
		if rec.MessageID == messageID && rec.Emoji == emoji {
			out = append(out, rec.UserID)
		}
	}
	return out
}

// Attachments

func (s *Store) PutAttachment(ctx context.Context, rec Attachment) {
	s.attachmentsMu.Lock()
	s.attachments[rec.ID] = rec
	s.attachmentsMu.Unlock()

	s.mirrorWrite("put_attachment", func(m *mirror) error { return m.upsertAttachment(ctx, rec) })
}

func (s *Store) GetAttachment(ctx context.Context, id uuid.UUID) (Attachment, bool) {
	if s.mirror != nil {
		if rec, ok, err := s.mirror.getAttachment(ctx, id); err == nil {
			return rec, ok
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.attachmentsMu.RLock()
	defer s.attachmentsMu.RUnlock()
	rec, ok := s.attachments[id]
	return rec, ok
}

// Pending uploads

func (s *Store) PutPendingUpload(ctx context.Context, rec PendingUpload) {
	s.pendingMu.Lock()
	s.pending[rec.UploadID] = rec
	s.pendingMu.Unlock()

	s.mirrorWrite("put_pending_upload", func(m *mirror) error { return m.upsertPendingUpload(ctx, rec) })
}

// TakePendingUpload removes and returns a pending upload. The removal makes
// commits single-use: a second take of the same upload_id misses.
func (s *Store) TakePendingUpload(ctx context.Context, uploadID uuid.UUID) (PendingUpload, bool) {
	s.pendingMu.Lock()
	rec, ok := s.pending[uploadID]
	if ok {
		delete(s.pending, uploadID)
	}
	s.pendingMu.Unlock()

	if s.mirror != nil {
		if mRec, mOK, err := s.mirror.takePendingUpload(ctx, uploadID); err == nil {
			if mOK {
				return mRec, true
			}
		} else {
			s.log.Warn().Err(err).Msg("Mirror take failed, falling back to memory")
		}
	}

	return rec, ok
}

// Audit log

func (s *Store) AppendAuditEntry(ctx context.Context, rec AuditEntry) {
	s.auditMu.Lock()
	s.audit[rec.WorkspaceID] = append(s.audit[rec.WorkspaceID], rec)
	s.auditMu.Unlock()

	s.mirrorWrite("append_audit_entry", func(m *mirror) error { return m.upsertAuditEntry(ctx, rec) })
}

func (s *Store) ListAuditEntries(ctx context.Context, workspaceID uuid.UUID) []AuditEntry {
	if s.mirror != nil {
		if recs, err := s.mirror.listAuditEntries(ctx, workspaceID); err == nil {
			return recs
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.auditMu.RLock()
	defer s.auditMu.RUnlock()
	entries := s.audit[workspaceID]
	out := make([]AuditEntry, len(entries))
	copy(out, entries)
	return out
}

// WebSocket command dedup

// PutSendDedup records the message created for a SEND_MESSAGE idempotency
// key so replays can return the original id.
func (s *Store) PutSendDedup(ctx context.Context, key string, messageID uuid.UUID) {
	s.dedupMu.Lock()
	s.sendDedup[key] = messageID
	s.dedupMu.Unlock()

	s.mirrorWrite("put_send_dedup", func(m *mirror) error { return m.upsertDedup(ctx, key, &messageID) })
}

func (s *Store) GetSendDedup(ctx context.Context, key string) (uuid.UUID, bool) {
	if s.mirror != nil {
		if id, ok, err := s.mirror.getDedup(ctx, key); err == nil {
			if ok && id != nil {
				return *id, true
			}
			return uuid.Nil, false
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.dedupMu.RLock()
	defer s.dedupMu.RUnlock()
	id, ok := s.sendDedup[key]
	return id, ok
}

// PutOnceDedup marks a non-SEND command idempotency key as applied.
func (s *Store) PutOnceDedup(ctx context.Context, key string) {
	s.dedupMu.Lock()
	s.onceDedup[key] = struct{}{}
	s.dedupMu.Unlock()

	s.mirrorWrite("put_once_dedup", func(m *mirror) error { return m.upsertDedup(ctx, key, nil) })
}

func (s *Store) HasOnceDedup(ctx context.Context, key string) bool {
	if s.mirror != nil {
		if _, ok, err := s.mirror.getDedup(ctx, key); err == nil {
			return ok
		} else {
			s.log.Warn().Err(err).Msg("Mirror read failed, falling back to memory")
		}
	}

	s.dedupMu.RLock()
	defer s.dedupMu.RUnlock()
	_, ok := s.onceDedup[key]
	return ok
}
