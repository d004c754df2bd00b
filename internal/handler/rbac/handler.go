package rbac

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hmis-api/internal/middleware"
	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/service/rbac"
	"github.com/jwalitptl/hmis-api/pkg/httputil"
)

type Handler struct {
	service *rbac.Service
}

func NewHandler(service *rbac.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware) {
	g := r.Group("/rbac", mw.Authenticate())
	{
		view := mw.RequirePermission(model.ModuleUserManagement, model.ActionView)
		edit := mw.RequirePermission(model.ModuleUserManagement, model.ActionEdit)
		admin := mw.RequireRole(model.RoleAdmin)

		perms := g.Group("/permissions")
		{
			perms.GET("", view, h.ListPermissions)
			perms.GET("/:role/:module", view, h.GetPermission)
			perms.PUT("/:role/:module", edit, h.UpsertPermission)
			perms.DELETE("/:role/:module",
				mw.RequirePermission(model.ModuleUserManagement, model.ActionDelete),
				h.DeletePermission)
			perms.POST("/seed", admin, h.SeedDefaults)
		}

		users := g.Group("/users/:id/roles")
		{
			users.GET("", view, h.ListUserRoles)
			users.POST("", admin, h.AssignRole)
			users.DELETE("/:role", admin, h.RemoveRole)
		}
	}
}

func (h *Handler) ListPermissions(c *gin.Context) {
	perms, err := h.service.ListPermissions(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, perms)
}

func (h *Handler) GetPermission(c *gin.Context) {
	perm, err := h.service.GetPermission(c.Request.Context(), model.Role(c.Param("role")), model.Module(c.Param("module")))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, perm)
}

type upsertPermissionRequest struct {
	CanView   bool `json:"can_view"`
	CanCreate bool `json:"can_create"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

// UpsertPermission replaces the four flags of one (role, module) row.
func (h *Handler) UpsertPermission(c *gin.Context) {
	var req upsertPermissionRequest
	if !httputil.Bind(c, &req) {
		return
	}

	perm := &model.RolePermission{
		Role:      model.Role(c.Param("role")),
		Module:    model.Module(c.Param("module")),
		CanView:   req.CanView,
		CanCreate: req.CanCreate,
		CanEdit:   req.CanEdit,
		CanDelete: req.CanDelete,
	}
	if err := h.service.UpsertPermission(c.Request.Context(), middleware.Principal(c).UserID, perm); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, perm)
}

func (h *Handler) DeletePermission(c *gin.Context) {
	err := h.service.DeletePermission(c.Request.Context(), middleware.Principal(c).UserID,
		model.Role(c.Param("role")), model.Module(c.Param("module")))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SeedDefaults(c *gin.Context) {
	n, err := h.service.SeedDefaults(c.Request.Context(), middleware.Principal(c).UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"inserted": n})
}

func (h *Handler) ListUserRoles(c *gin.Context) {
	userID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	roles, err := h.service.ListUserRoles(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, roles)
}

type assignRoleRequest struct {
	Role model.Role `json:"role" binding:"required,role"`
}

func (h *Handler) AssignRole(c *gin.Context) {
	userID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req assignRoleRequest
	if !httputil.Bind(c, &req) {
		return
	}

	if err := h.service.AssignRole(c.Request.Context(), middleware.Principal(c), userID, req.Role); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, gin.H{"user_id": userID, "role": req.Role})
}

func (h *Handler) RemoveRole(c *gin.Context) {
	userID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	err := h.service.RemoveRole(c.Request.Context(), middleware.Principal(c), userID, model.Role(c.Param("role")))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
