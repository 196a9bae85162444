// Package reaction manages per-(message, emoji) reaction sets.
package reaction

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/channel"
	"github.com/galynx/galynx-server/internal/store"
)

// Update is the aggregate reaction state after an add or remove, computed
// from the post-mutation user set.
type Update struct {
	MessageID   uuid.UUID   `json:"message_id"`
	ChannelID   uuid.UUID   `json:"channel_id"`
	WorkspaceID uuid.UUID   `json:"workspace_id"`
	Emoji       string      `json:"emoji"`
	Count       int         `json:"count"`
	UserIDs     []uuid.UUID `json:"user_ids"`
	Op          string      `json:"op"`
}

// Service adds and removes reactions with set semantics: repeated adds and
// removes of the same (message, emoji, user) tuple are idempotent.
type Service struct {
	store    *store.Store
	channels *channel.Service
}

func NewService(st *store.Store, channels *channel.Service) *Service {
	return &Service{store: st, channels: channels}
}

// Add records the actor's reaction and returns the aggregate state.
func (s *Service) Add(ctx context.Context, actor auth.Context, messageID uuid.UUID, emoji string) (Update, error) {
	return s.apply(ctx, actor, messageID, emoji, "added")
}

// Remove withdraws the actor's reaction and returns the aggregate state.
func (s *Service) Remove(ctx context.Context, actor auth.Context, messageID uuid.UUID, emoji string) (Update, error) {
	return s.apply(ctx, actor, messageID, emoji, "removed")
}

func (s *Service) apply(ctx context.Context, actor auth.Context, messageID uuid.UUID, emoji, op string) (Update, error) {
	emoji, err := normalizeEmoji(emoji)
	if err != nil {
		return Update{}, err
	}

	// Resolving through the channel service enforces workspace isolation
	// and hides soft-deleted messages.
	message, err := s.channels.GetMessage(ctx, actor.WorkspaceID, messageID)
	if err != nil {
		return Update{}, err
	}

	if op == "added" {
		s.store.AddReaction(ctx, messageID, emoji, actor.UserID)
	} else {
		s.store.RemoveReaction(ctx, messageID, emoji, actor.UserID)
	}

	userIDs := s.store.ListReactionUsers(ctx, messageID, emoji)
	sort.Slice(userIDs, func(i, j int) bool {
		return strings.Compare(userIDs[i].String(), userIDs[j].String()) < 0
	})
	userIDs = dedup(userIDs)

	return Update{
		MessageID:   messageID,
		ChannelID:   message.ChannelID,
		WorkspaceID: actor.WorkspaceID,
		Emoji:       emoji,
		Count:       len(userIDs),
		UserIDs:     userIDs,
		Op:          op,
	}, nil
}

func normalizeEmoji(emoji string) (string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return "", apperr.BadRequest("emoji is required")
	}
	if len([]rune(emoji)) > 32 {
		return "", apperr.BadRequest("emoji is too long")
	}
	return emoji, nil
}

func dedup(ids []uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || ids[i-1] != id {
			out = append(out, id)
		}
	}
	return out
}
