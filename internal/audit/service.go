// Package audit keeps the append-only record of mutating operations.
package audit

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/store"
)

// Page is one descending page of the workspace audit log.
type Page struct {
	Items      []store.AuditEntry `json:"items"`
	NextCursor *string            `json:"next_cursor"`
}

// Service appends and lists audit entries. Entries are written after their
// mutation succeeds and are never updated or removed.
type Service struct {
	store *store.Store
	log   zerolog.Logger
}

func NewService(st *store.Store, logger zerolog.Logger) *Service {
	return &Service{
		store: st,
		log:   logger.With().Str("component", "audit").Logger(),
	}
}

// Write appends one entry. Audit failures never fail the operation that
// produced them.
func (s *Service) Write(ctx context.Context, workspaceID uuid.UUID, actorID *uuid.UUID, action, targetType string, targetID *string, metadata map[string]any) {
	id, err := uuid.NewV7()
	if err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("Failed to allocate audit entry id")
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	s.store.AppendAuditEntry(ctx, store.AuditEntry{
		ID:          id,
		WorkspaceID: workspaceID,
		ActorID:     actorID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Metadata:    metadata,
		CreatedAt:   time.Now().UnixMilli(),
	})
}

// List pages through the workspace audit log, newest first. Reading the log
// requires an owner or admin role.
func (s *Service) List(ctx context.Context, actor auth.Context, cursor string, limit int) (Page, error) {
	if !actor.Role.CanAdminister() {
		return Page{}, apperr.Unauthorized("you do not have permission to read audit logs")
	}

	var anchor *store.Cursor
	if cursor != "" {
		parsed, err := store.ParseCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		anchor = &parsed
	}
	limit = store.ClampLimit(limit)

	entries := s.store.ListAuditEntries(ctx, actor.WorkspaceID)
	sort.Slice(entries, func(i, j int) bool {
		return store.CompareDesc(entries[i].CreatedAt, entries[i].ID, entries[j].CreatedAt, entries[j].ID) < 0
	})

	items := make([]store.AuditEntry, 0, limit)
	hasMore := false
	for _, entry := range entries {
		if anchor != nil && !anchor.Contains(entry.CreatedAt, entry.ID) {
			continue
		}
		if len(items) == limit {
			hasMore = true
			break
		}
		items = append(items, entry)
	}

	page := Page{Items: items}
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		next := store.FormatCursor(last.CreatedAt, last.ID)
		page.NextCursor = &next
	}
	return page, nil
}
