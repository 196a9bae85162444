package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/apperr"
	"github.com/galynx/galynx-server/internal/audit"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/httputil"
	"github.com/galynx/galynx-server/internal/store"
	"github.com/galynx/galynx-server/internal/workspace"
)

// WorkspaceHandler serves workspace and workspace membership endpoints.
type WorkspaceHandler struct {
	workspaces *workspace.Service
	store      *store.Store
	audit      *audit.Service
	log        zerolog.Logger
}

// NewWorkspaceHandler creates a new workspace handler.
func NewWorkspaceHandler(workspaces *workspace.Service, st *store.Store, auditSvc *audit.Service, logger zerolog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces, store: st, audit: auditSvc, log: logger}
}

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

type onboardMemberRequest struct {
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Password string    `json:"password"`
	Role     auth.Role `json:"role"`
}

// ensureContextWorkspace rejects calls whose token was issued for a different
// workspace than the one addressed in the path.
func ensureContextWorkspace(actor auth.Context, workspaceID uuid.UUID) error {
	if actor.WorkspaceID != workspaceID {
		return apperr.Unauthorized("token workspace does not match requested workspace")
	}
	return nil
}

func ensureWorkspaceAdmin(actor auth.Context) error {
	if !actor.Role.CanAdminister() {
		return apperr.Unauthorized("you do not have permission to manage workspace members")
	}
	return nil
}

// List handles GET /api/v1/workspaces.
func (h *WorkspaceHandler) List(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}

	items, err := h.workspaces.ListForUser(c, actor.UserID)
	if err != nil {
		return httputil.Error(c, err)
	}
	return c.JSON(items)
}

// Create handles POST /api/v1/workspaces.
func (h *WorkspaceHandler) Create(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}

	var body createWorkspaceRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}

	ws, err := h.workspaces.Create(c, actor.UserID, body.Name)
	if err != nil {
		return httputil.Error(c, err)
	}

	targetID := ws.ID.String()
	h.audit.Write(c, ws.ID, &actor.UserID, "WORKSPACE_CREATED", "workspace", &targetID, map[string]any{
		"name": ws.Name,
	})

	return c.Status(fiber.StatusCreated).JSON(ws)
}

// ListMembers handles GET /api/v1/workspaces/{id}/members.
func (h *WorkspaceHandler) ListMembers(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	workspaceID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid workspace id"))
	}
	if err := ensureContextWorkspace(actor, workspaceID); err != nil {
		return httputil.Error(c, err)
	}
	if err := ensureWorkspaceAdmin(actor); err != nil {
		return httputil.Error(c, err)
	}
	if _, ok := h.store.GetWorkspace(c, workspaceID); !ok {
		return httputil.Error(c, apperr.NotFound("workspace not found"))
	}

	members, err := h.workspaces.ListMembers(c, workspaceID)
	if err != nil {
		return httputil.Error(c, err)
	}
	return c.JSON(members)
}

// OnboardMember handles POST /api/v1/workspaces/{id}/members.
func (h *WorkspaceHandler) OnboardMember(c fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return httputil.Error(c, err)
	}
	workspaceID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid workspace id"))
	}
	if err := ensureContextWorkspace(actor, workspaceID); err != nil {
		return httputil.Error(c, err)
	}
	if err := ensureWorkspaceAdmin(actor); err != nil {
		return httputil.Error(c, err)
	}
	if _, ok := h.store.GetWorkspace(c, workspaceID); !ok {
		return httputil.Error(c, apperr.NotFound("workspace not found"))
	}

	var body onboardMemberRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.Error(c, apperr.BadRequest("invalid request body"))
	}

	member, err := h.workspaces.OnboardMember(c, workspaceID, body.Email, body.Name, body.Password, body.Role)
	if err != nil {
		return httputil.Error(c, err)
	}

	targetID := member.UserID.String()
	h.audit.Write(c, workspaceID, &actor.UserID, "WORKSPACE_MEMBER_ONBOARDED", "user", &targetID, map[string]any{
		"email": member.Email,
		"role":  member.Role,
	})

	return c.Status(fiber.StatusCreated).JSON(member)
}
