package audit

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hmis-api/internal/middleware"
	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/service/audit"
	"github.com/jwalitptl/hmis-api/pkg/httputil"
)

type Handler struct {
	service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware) {
	r.GET("/audit/logs", mw.Authenticate(), mw.RequireRole(model.RoleAdmin), h.ListLogs)
}

func (h *Handler) ListLogs(c *gin.Context) {
	var filters model.AuditFilters
	if !httputil.BindQuery(c, &filters) {
		return
	}
	var ok bool
	if filters.UserID, ok = httputil.QueryUUID(c, "user_id"); !ok {
		return
	}

	logs, total, err := h.service.List(c.Request.Context(), &filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	httputil.RespondWithPagination(c, logs, page, filters.Limit(), int(total))
}
