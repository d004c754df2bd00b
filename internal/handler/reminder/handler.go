package reminder

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hmis-api/internal/middleware"
	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/service/reminder"
	"github.com/jwalitptl/hmis-api/pkg/httputil"
)

type Handler struct {
	service *reminder.Service
}

func NewHandler(service *reminder.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware) {
	r.POST("/reminders",
		mw.Authenticate(),
		mw.RequirePermission(model.ModuleAppointments, model.ActionCreate),
		h.Send)
}

// Send delivers one reminder. A delivery failure is reported in the body with
// a 200, matching what the reminder log records.
func (h *Handler) Send(c *gin.Context) {
	var req model.ReminderRequest
	if !httputil.Bind(c, &req) {
		return
	}

	result, err := h.service.Send(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, result)
}
