package authz

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hmis-api/internal/handler"
	"github.com/jwalitptl/hmis-api/internal/middleware"
	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/service/authz"
	"github.com/jwalitptl/hmis-api/pkg/httputil"
)

type Handler struct {
	engine *authz.Engine
}

func NewHandler(engine *authz.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware) {
	g := r.Group("", mw.Authenticate())
	g.GET("/me/permissions", h.Matrix)
	g.GET("/authz/check", h.Check)
}

// ready answers 503 while the principal's roles are loading, so a client never
// renders a denial it would have to retract.
func ready(c *gin.Context, p authz.Principal) bool {
	switch p.Status() {
	case authz.StatusUninitialized, authz.StatusLoading:
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, handler.NewErrorResponse("permissions are still loading"))
		return false
	}
	return true
}

type moduleCapability struct {
	Module model.Module `json:"module"`
	model.Capability
}

// Matrix returns the caller's capability on every module, in display order.
func (h *Handler) Matrix(c *gin.Context) {
	p := middleware.Principal(c)
	if !ready(c, p) {
		return
	}

	matrix := h.engine.Matrix(c.Request.Context(), p)
	out := make([]moduleCapability, 0, len(model.AllModules))
	for _, m := range model.AllModules {
		out = append(out, moduleCapability{Module: m, Capability: matrix[m]})
	}
	httputil.RespondWithSuccess(c, http.StatusOK, out)
}

type checkQuery struct {
	Module model.Module `form:"module" binding:"required,module"`
	Action model.Action `form:"action" binding:"omitempty,action"`
}

type checkResponse struct {
	Module  model.Module `json:"module"`
	Action  model.Action `json:"action"`
	Allowed bool         `json:"allowed"`
	Rule    string       `json:"rule"`
}

// Check explains a single decision. A missing action checks view.
func (h *Handler) Check(c *gin.Context) {
	var q checkQuery
	if !httputil.BindQuery(c, &q) {
		return
	}
	if q.Action == "" {
		q.Action = model.ActionView
	}

	p := middleware.Principal(c)
	if !ready(c, p) {
		return
	}

	d := h.engine.Check(c.Request.Context(), p, q.Module, q.Action)
	httputil.RespondWithSuccess(c, http.StatusOK, checkResponse{
		Module:  q.Module,
		Action:  q.Action,
		Allowed: d.Allowed,
		Rule:    d.Rule,
	})
}
