// Package channel owns channels, channel membership, messages, and threads.
// Every channel-scoped operation enforces workspace isolation and the
// private-channel ACL before touching data.
package channel

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/store"
)

// MessagePage is one page of a descending message listing. NextCursor is nil
// on the final page.
type MessagePage struct {
	Items      []store.Message `json:"items"`
	NextCursor *string         `json:"next_cursor"`
}

// ThreadSummary describes a thread root and its non-deleted replies.
// Participants lists the root sender first, then repliers in first-seen order.
type ThreadSummary struct {
	RootMessage  store.Message `json:"root_message"`
	ReplyCount   int           `json:"reply_count"`
	LastReplyAt  *int64        `json:"last_reply_at"`
	Participants []uuid.UUID   `json:"participants"`
}

// Service implements channel, message, and thread operations.
type Service struct {
	store                *store.Store
	bootstrapWorkspaceID uuid.UUID
	bootstrapCreatorID   uuid.UUID
	log                  zerolog.Logger
}

func NewService(st *store.Store, bootstrapWorkspaceID, bootstrapCreatorID uuid.UUID, logger zerolog.Logger) *Service {
	return &Service{
		store:                st,
		bootstrapWorkspaceID: bootstrapWorkspaceID,
		bootstrapCreatorID:   bootstrapCreatorID,
		log:                  logger.With().Str("component", "channel").Logger(),
	}
}

// EnsureDefaultChannel seeds a public "general" channel in the bootstrap
// workspace when it has none. The mongo backend skips the seed: its channel
// set survives restarts and an empty workspace there is deliberate.
func (s *Service) EnsureDefaultChannel(ctx context.Context) {
	if s.store.Backend() == "mongo" {
		return
	}
	if len(s.store.ListChannels(ctx, s.bootstrapWorkspaceID)) > 0 {
		return
	}

	s.store.PutChannel(ctx, store.Channel{
		ID:          uuid.New(),
		WorkspaceID: s.bootstrapWorkspaceID,
		Name:        "general",
		IsPrivate:   false,
		CreatedBy:   s.bootstrapCreatorID,
		CreatedAt:   time.Now().UnixMilli(),
	})
	s.log.Info().Msg("Seeded default general channel")
}

// ListChannels returns the workspace's channels ordered by creation.
func (s *Service) ListChannels(ctx context.Context, workspaceID uuid.UUID) []store.Channel {
	return s.store.ListChannels(ctx, workspaceID)
}

// CreateChannel creates a channel. Names are trimmed and lowercased and must
// be unique within the workspace. Private channels enroll their creator.
func (s *Service) CreateChannel(ctx context.Context, actor auth.Context, name string, isPrivate bool) (store.Channel, error) {
	if err := requireChannelAdmin(actor); err != nil {
		return store.Channel{}, err
	}

	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return store.Channel{}, apperr.BadRequest("channel name is required")
	}
	if s.store.ChannelNameExists(ctx, actor.WorkspaceID, name) {
		return store.Channel{}, apperr.BadRequest("channel name already exists")
	}

	channel := store.Channel{
		ID:          uuid.New(),
		WorkspaceID: actor.WorkspaceID,
		Name:        name,
		IsPrivate:   isPrivate,
		CreatedBy:   actor.UserID,
		CreatedAt:   time.Now().UnixMilli(),
	}
	s.store.PutChannel(ctx, channel)
	if channel.IsPrivate {
		s.store.AddChannelMember(ctx, channel.ID, actor.UserID)
	}
	return channel, nil
}

// DeleteChannel removes a channel, its membership rows, and its messages. The
// cascade is not atomic; re-running it after a partial failure is safe.
func (s *Service) DeleteChannel(ctx context.Context, actor auth.Context, channelID uuid.UUID) error {
	if err := requireChannelAdmin(actor); err != nil {
		return err
	}
	if _, err := s.requireChannel(ctx, actor.WorkspaceID, channelID); err != nil {
		return err
	}

	s.store.RemoveChannel(ctx, channelID)
	s.store.RemoveChannelMembers(ctx, channelID)
	s.store.RemoveMessagesForChannel(ctx, channelID)
	return nil
}

// ListMembers returns the channel's member user ids, sorted and deduplicated.
func (s *Service) ListMembers(ctx context.Context, actor auth.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	if err := requireChannelAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := s.requireChannel(ctx, actor.WorkspaceID, channelID); err != nil {
		return nil, err
	}

	members := s.store.ListChannelMembers(ctx, channelID)
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	sort.Slice(ids, func(i, j int) bool {
		return strings.Compare(ids[i].String(), ids[j].String()) < 0
	})
	ids = dedupIDs(ids)
	return ids, nil
}

// AddMember enrolls a workspace member into a channel.
func (s *Service) AddMember(ctx context.Context, actor auth.Context, channelID, userID uuid.UUID) error {
	if err := requireChannelAdmin(actor); err != nil {
		return err
	}
	if _, err := s.requireChannel(ctx, actor.WorkspaceID, channelID); err != nil {
		return err
	}
	if _, ok := s.store.GetMembershipRole(ctx, actor.WorkspaceID, userID); !ok {
		return apperr.BadRequest("user does not belong to workspace")
	}

	s.store.AddChannelMember(ctx, channelID, userID)
	return nil
}

// RemoveMember removes a user from a channel. Removing a non-member is a
// no-op.
func (s *Service) RemoveMember(ctx context.Context, actor auth.Context, channelID, userID uuid.UUID) error {
	if err := requireChannelAdmin(actor); err != nil {
		return err
	}
	if _, err := s.requireChannel(ctx, actor.WorkspaceID, channelID); err != nil {
		return err
	}

	s.store.RemoveChannelMember(ctx, channelID, userID)
	return nil
}

// CreateMessage posts a message to a channel the actor can access.
func (s *Service) CreateMessage(ctx context.Context, actor auth.Context, channelID uuid.UUID, bodyMD string) (store.Message, error) {
	body := strings.TrimSpace(bodyMD)
	if body == "" {
		return store.Message{}, apperr.BadRequest("message body is required")
	}
	if err := s.EnsureChannelAccess(ctx, actor, channelID); err != nil {
		return store.Message{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return store.Message{}, apperr.Internal("failed to allocate message id")
	}
	message := store.Message{
		ID:          id,
		WorkspaceID: actor.WorkspaceID,
		ChannelID:   channelID,
		SenderID:    actor.UserID,
		BodyMD:      body,
		CreatedAt:   time.Now().UnixMilli(),
	}
	s.store.PutMessage(ctx, message)
	return message, nil
}

// ListMessages pages through a channel's non-deleted messages, newest first.
func (s *Service) ListMessages(ctx context.Context, actor auth.Context, channelID uuid.UUID, cursor string, limit int) (MessagePage, error) {
	if err := s.EnsureChannelAccess(ctx, actor, channelID); err != nil {
		return MessagePage{}, err
	}

	matches := func(m store.Message) bool {
		return m.ChannelID == channelID && m.DeletedAt == nil
	}
	return s.pageMessages(ctx, actor.WorkspaceID, matches, cursor, limit)
}

// UpdateMessage edits a message body. Only the sender may edit.
func (s *Service) UpdateMessage(ctx context.Context, actor auth.Context, messageID uuid.UUID, bodyMD string) (store.Message, error) {
	body := strings.TrimSpace(bodyMD)
	if body == "" {
		return store.Message{}, apperr.BadRequest("message body is required")
	}

	message, ok := s.store.GetMessage(ctx, messageID)
	if !ok || message.WorkspaceID != actor.WorkspaceID {
		return store.Message{}, apperr.NotFound("message not found")
	}
	if message.SenderID != actor.UserID {
		return store.Message{}, apperr.Unauthorized("you can only edit your own messages")
	}

	now := time.Now().UnixMilli()
	message.BodyMD = body
	message.EditedAt = &now
	s.store.PutMessage(ctx, message)
	return message, nil
}

// DeleteMessage soft-deletes a message. The sender may delete their own;
// owners and admins may delete any message in the workspace.
func (s *Service) DeleteMessage(ctx context.Context, actor auth.Context, messageID uuid.UUID) error {
	message, ok := s.store.GetMessage(ctx, messageID)
	if !ok || message.WorkspaceID != actor.WorkspaceID {
		return apperr.NotFound("message not found")
	}
	if message.SenderID != actor.UserID && !actor.Role.CanAdminister() {
		return apperr.Unauthorized("you do not have permission to delete this message")
	}

	now := time.Now().UnixMilli()
	message.DeletedAt = &now
	s.store.PutMessage(ctx, message)
	return nil
}

// GetMessage resolves a visible message within a workspace. Soft-deleted and
// cross-workspace messages are indistinguishable from missing ones.
func (s *Service) GetMessage(ctx context.Context, workspaceID, messageID uuid.UUID) (store.Message, error) {
	message, ok := s.store.GetMessage(ctx, messageID)
	if !ok || message.WorkspaceID != workspaceID || message.DeletedAt != nil {
		return store.Message{}, apperr.NotFound("message not found")
	}
	return message, nil
}

// ThreadSummary reports the reply count, last reply time, and participants of
// a thread.
func (s *Service) ThreadSummary(ctx context.Context, actor auth.Context, rootID uuid.UUID) (ThreadSummary, error) {
	root, err := s.requireThreadRoot(ctx, actor, rootID)
	if err != nil {
		return ThreadSummary{}, err
	}

	summary := ThreadSummary{
		RootMessage:  root,
		Participants: []uuid.UUID{root.SenderID},
	}
	for _, m := range s.store.ListMessages(ctx, actor.WorkspaceID) {
		if m.ThreadRootID == nil || *m.ThreadRootID != rootID || m.DeletedAt != nil {
			continue
		}
		summary.ReplyCount++
		if summary.LastReplyAt == nil || m.CreatedAt > *summary.LastReplyAt {
			createdAt := m.CreatedAt
			summary.LastReplyAt = &createdAt
		}
		if !containsID(summary.Participants, m.SenderID) {
			summary.Participants = append(summary.Participants, m.SenderID)
		}
	}
	return summary, nil
}

// ListThreadReplies pages through a thread's non-deleted replies, newest
// first.
func (s *Service) ListThreadReplies(ctx context.Context, actor auth.Context, rootID uuid.UUID, cursor string, limit int) (MessagePage, error) {
	if _, err := s.requireThreadRoot(ctx, actor, rootID); err != nil {
		return MessagePage{}, err
	}

	matches := func(m store.Message) bool {
		return m.ThreadRootID != nil && *m.ThreadRootID == rootID && m.DeletedAt == nil
	}
	return s.pageMessages(ctx, actor.WorkspaceID, matches, cursor, limit)
}

// CreateThreadReply posts a reply under a thread root. Replies inherit the
// root's channel; replying to a reply is rejected to keep threads flat.
func (s *Service) CreateThreadReply(ctx context.Context, actor auth.Context, rootID uuid.UUID, bodyMD string) (store.Message, error) {
	body := strings.TrimSpace(bodyMD)
	if body == "" {
		return store.Message{}, apperr.BadRequest("message body is required")
	}

	root, ok := s.store.GetMessage(ctx, rootID)
	if !ok || root.WorkspaceID != actor.WorkspaceID {
		return store.Message{}, apperr.NotFound("thread root not found")
	}
	if root.ThreadRootID != nil {
		return store.Message{}, apperr.BadRequest("thread replies must reference root message")
	}
	if err := s.EnsureChannelAccess(ctx, actor, root.ChannelID); err != nil {
		return store.Message{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return store.Message{}, apperr.Internal("failed to allocate message id")
	}
	reply := store.Message{
		ID:           id,
		WorkspaceID:  actor.WorkspaceID,
		ChannelID:    root.ChannelID,
		SenderID:     actor.UserID,
		BodyMD:       body,
		ThreadRootID: &rootID,
		CreatedAt:    time.Now().UnixMilli(),
	}
	s.store.PutMessage(ctx, reply)
	return reply, nil
}

// EnsureChannelAccess verifies the channel belongs to the actor's workspace
// and, for private channels, that member-role actors are enrolled. A channel
// in another workspace looks exactly like a missing one.
func (s *Service) EnsureChannelAccess(ctx context.Context, actor auth.Context, channelID uuid.UUID) error {
	channel, err := s.requireChannel(ctx, actor.WorkspaceID, channelID)
	if err != nil {
		return err
	}
	if channel.IsPrivate && !actor.Role.CanAdminister() && !s.store.IsChannelMember(ctx, channelID, actor.UserID) {
		return apperr.Unauthorized("you do not have access to this private channel")
	}
	return nil
}

func (s *Service) requireChannel(ctx context.Context, workspaceID, channelID uuid.UUID) (store.Channel, error) {
	channel, ok := s.store.GetChannel(ctx, channelID)
	if !ok || channel.WorkspaceID != workspaceID {
		return store.Channel{}, apperr.NotFound("channel not found")
	}
	return channel, nil
}

func (s *Service) requireThreadRoot(ctx context.Context, actor auth.Context, rootID uuid.UUID) (store.Message, error) {
	root, ok := s.store.GetMessage(ctx, rootID)
	if !ok || root.WorkspaceID != actor.WorkspaceID || root.ThreadRootID != nil {
		return store.Message{}, apperr.NotFound("thread root not found")
	}
	if err := s.EnsureChannelAccess(ctx, actor, root.ChannelID); err != nil {
		return store.Message{}, err
	}
	return root, nil
}

// pageMessages filters the workspace's messages, sorts them newest first, and
// cuts one page. It reads limit+1 entries to learn whether a further page
// exists.
func (s *Service) pageMessages(ctx context.Context, workspaceID uuid.UUID, matches func(store.Message) bool, cursor string, limit int) (MessagePage, error) {
	var anchor *store.Cursor
	if cursor != "" {
		parsed, err := store.ParseCursor(cursor)
		if err != nil {
			return MessagePage{}, err
		}
		anchor = &parsed
	}
	limit = store.ClampLimit(limit)

	var selected []store.Message
	for _, m := range s.store.ListMessages(ctx, workspaceID) {
		if matches(m) {
			selected = append(selected, m)
		}
	}
	sort.Slice(selected, func(i, j int) bool {
		return store.CompareDesc(selected[i].CreatedAt, selected[i].ID, selected[j].CreatedAt, selected[j].ID) < 0
	})

	items := make([]store.Message, 0, limit)
	hasMore := false
	for _, m := range selected {
		if anchor != nil && !anchor.Contains(m.CreatedAt, m.ID) {
			continue
		}
		if len(items) == limit {
			hasMore = true
			break
		}
		items = append(items, m)
	}

	page := MessagePage{Items: items}
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		next := store.FormatCursor(last.CreatedAt, last.ID)
		page.NextCursor = &next
	}
	return page, nil
}

func requireChannelAdmin(actor auth.Context) error {
	if !actor.Role.CanAdminister() {
		return apperr.Unauthorized("you do not have permission to manage channels")
	}
	return nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func dedupIDs(ids []uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || ids[i-1] != id {
			out = append(out, id)
		}
	}
	return out
}
