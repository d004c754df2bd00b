package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hmis-api/internal/middleware"
	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/service/auth"
	"github.com/jwalitptl/hmis-api/pkg/httputil"
)

type Handler struct {
	svc *auth.Service
}

func NewHandler(svc *auth.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware) {
	r.POST("/auth/login", h.Login)

	protected := r.Group("", mw.Authenticate())
	protected.GET("/auth/me", h.Me)
	protected.POST("/users",
		mw.RequirePermission(model.ModuleUserManagement, model.ActionCreate),
		h.CreateUser)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !httputil.Bind(c, &req) {
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, tokens)
}

type meResponse struct {
	UserID uuid.UUID    `json:"user_id"`
	Email  string       `json:"email"`
	Status string       `json:"status"`
	Roles  []model.Role `json:"roles"`
}

// Me reports the caller's identity and role lifecycle. Roles are empty until
// the principal is ready.
func (h *Handler) Me(c *gin.Context) {
	p := middleware.Principal(c)
	roles, _ := p.Roles()

	httputil.RespondWithSuccess(c, http.StatusOK, meResponse{
		UserID: p.UserID,
		Email:  p.Email,
		Status: p.Status().String(),
		Roles:  roles.Slice(),
	})
}

type createUserRequest struct {
	Email    string  `json:"email" binding:"required,email"`
	Name     string  `json:"name" binding:"required"`
	Password string  `json:"password" binding:"required,min=8"`
	Phone    *string `json:"phone"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if !httputil.Bind(c, &req) {
		return
	}

	user, err := h.svc.CreateUser(c.Request.Context(), auth.CreateUserRequest{
		Email:     req.Email,
		Name:      req.Name,
		Password:  req.Password,
		Phone:     req.Phone,
		CreatedBy: middleware.Principal(c).UserID,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, user)
}
