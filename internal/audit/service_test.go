package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/store"
)

func newService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(context.Background(), "memory", "", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return NewService(st, zerolog.Nop())
}

func TestListRequiresAdminRole(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	member := auth.Context{UserID: uuid.New(), WorkspaceID: uuid.New(), Role: auth.RoleMember}
	_, err := svc.List(context.Background(), member, "", 0)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != apperr.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestListPaginatesNewestFirst(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	workspaceID := uuid.New()
	actorID := uuid.New()
	admin := auth.Context{UserID: actorID, WorkspaceID: workspaceID, Role: auth.RoleAdmin}

	for i := 0; i < 3; i++ {
		svc.Write(context.Background(), workspaceID, &actorID, fmt.Sprintf("ACTION_%d", i), "test", nil, map[string]any{"seq": i})
		time.Sleep(2 * time.Millisecond)
	}
	// Entries from other workspaces never leak in.
	svc.Write(context.Background(), uuid.New(), &actorID, "OTHER", "test", nil, nil)

	first, err := svc.List(context.Background(), admin, "", 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Items) != 2 || first.NextCursor == nil {
		t.Fatalf("expected 2 items and a cursor, got %d items", len(first.Items))
	}
	if first.Items[0].Action != "ACTION_2" {
		t.Fatalf("expected newest first, got %s", first.Items[0].Action)
	}

	second, err := svc.List(context.Background(), admin, *first.NextCursor, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Items) != 1 || second.NextCursor != nil {
		t.Fatalf("expected final page of 1, got %d items", len(second.Items))
	}
	if second.Items[0].Action != "ACTION_0" {
		t.Fatalf("expected oldest entry last, got %s", second.Items[0].Action)
	}
}

func TestWriteDefaultsMetadata(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	workspaceID := uuid.New()
	owner := auth.Context{UserID: uuid.New(), WorkspaceID: workspaceID, Role: auth.RoleOwner}

	svc.Write(context.Background(), workspaceID, nil, "SYSTEM_EVENT", "system", nil, nil)

	page, err := svc.List(context.Background(), owner, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one entry, got %d", len(page.Items))
	}
	if page.Items[0].Metadata == nil {
		t.Fatalf("expected empty metadata map, got nil")
	}
	if page.Items[0].ActorID != nil {
		t.Fatalf("expected nil actor for system events")
	}
}
