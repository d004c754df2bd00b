package medication

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/hmis-api/internal/middleware"
	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/service/medication"
	apperrors "github.com/jwalitptl/hmis-api/pkg/errors"
	"github.com/jwalitptl/hmis-api/pkg/httputil"
	"github.com/jwalitptl/hmis-api/pkg/messaging"
)

// StreamPath is the route of the due-dose event stream. It has no request
// deadline.
const StreamPath = "/api/v1/medications/doses/stream"

type Handler struct {
	service *medication.Service
	broker  messaging.Broker
	now     func() time.Time
}

func NewHandler(service *medication.Service, broker messaging.Broker) *Handler {
	return &Handler{
		service: service,
		broker:  broker,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes mounts the medication routes. Permission checks happen in the
// service, which needs the principal for the administering user anyway.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware) {
	g := r.Group("/medications", mw.Authenticate())
	{
		g.POST("/items/:id/doses", h.Generate)
		g.POST("/items/:id/cancel", h.CancelPending)

		doses := g.Group("/doses")
		{
			doses.GET("/due", h.ListDue)
			doses.GET("/upcoming", h.ListUpcoming)
			doses.GET("/stream",
				mw.RequirePermission(model.ModuleMedications, model.ActionView),
				h.Stream)
			doses.POST("/:id/administer", h.Administer)
			doses.POST("/:id/skip", h.Skip)
		}

		g.GET("/administrations", h.AuditLog)
	}
}

type generateRequest struct {
	PrescriptionID uuid.UUID `json:"prescription_id" binding:"required"`
	PatientID      uuid.UUID `json:"patient_id" binding:"required"`
	StartDate      time.Time `json:"start_date" binding:"required"`
	DaysAhead      int       `json:"days_ahead" binding:"omitempty,min=1,max=90"`
}

func (h *Handler) Generate(c *gin.Context) {
	itemID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req generateRequest
	if !httputil.Bind(c, &req) {
		return
	}

	n, err := h.service.GenerateScheduledDoses(c.Request.Context(), middleware.Principal(c), medication.GenerateRequest{
		PrescriptionID: req.PrescriptionID,
		ItemID:         itemID,
		PatientID:      req.PatientID,
		StartDate:      req.StartDate,
		DaysAhead:      req.DaysAhead,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusCreated, gin.H{"generated": n})
}

func (h *Handler) ListDue(c *gin.Context) {
	patientID, ok := httputil.QueryUUID(c, "patient_id")
	if !ok {
		return
	}

	doses, err := h.service.ListDue(c.Request.Context(), middleware.Principal(c), patientID, h.now())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, doses)
}

func (h *Handler) ListUpcoming(c *gin.Context) {
	patientID, ok := httputil.QueryUUID(c, "patient_id")
	if !ok {
		return
	}

	doses, err := h.service.ListUpcoming(c.Request.Context(), middleware.Principal(c), patientID, h.now())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, doses)
}

type administerRequest struct {
	DosageGiven string  `json:"dosage_given" binding:"required"`
	Route       string  `json:"route" binding:"required"`
	Notes       *string `json:"notes"`
}

type administerResponse struct {
	Dose *model.ScheduledDose              `json:"dose"`
	Log  *model.MedicationAdministrationLog `json:"log"`
}

func (h *Handler) Administer(c *gin.Context) {
	doseID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req administerRequest
	if !httputil.Bind(c, &req) {
		return
	}

	dose, entry, err := h.service.RecordAdministration(c.Request.Context(), middleware.Principal(c), medication.AdministerRequest{
		DoseID:      doseID,
		DosageGiven: req.DosageGiven,
		Route:       req.Route,
		Notes:       req.Notes,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, administerResponse{Dose: dose, Log: entry})
}

type skipRequest struct {
	Reason string `json:"reason"`
}

// Skip leaves reason validation to the service so that an empty reason and a
// whitespace-only one get the same answer.
func (h *Handler) Skip(c *gin.Context) {
	doseID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req skipRequest
	if !httputil.Bind(c, &req) {
		return
	}

	dose, err := h.service.SkipDose(c.Request.Context(), middleware.Principal(c), doseID, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, dose)
}

func (h *Handler) CancelPending(c *gin.Context) {
	itemID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}

	n, err := h.service.CancelPending(c.Request.Context(), middleware.Principal(c), itemID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"cancelled": n})
}

func (h *Handler) AuditLog(c *gin.Context) {
	var filters model.AdministrationLogFilters
	if !httputil.BindQuery(c, &filters) {
		return
	}
	var ok bool
	if filters.PatientID, ok = httputil.QueryUUID(c, "patient_id"); !ok {
		return
	}
	if filters.AdministeredBy, ok = httputil.QueryUUID(c, "administered_by"); !ok {
		return
	}

	entries, err := h.service.AuditLog(c.Request.Context(), middleware.Principal(c), &filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, entries)
}

type dueEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Stream pushes doses as the poller marks them due, as server-sent events.
// With patient_id set only that patient's doses are sent.
func (h *Handler) Stream(c *gin.Context) {
	patientID, ok := httputil.QueryUUID(c, "patient_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	msgs, err := h.broker.Subscribe(ctx, messaging.ChannelDosesDue)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Unavailable(err))
		return
	}
	logger := zerolog.Ctx(ctx)

	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		raw, ok := <-msgs
		if !ok {
			return false
		}

		var ev dueEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.Warn().Err(err).Msg("dropping malformed due-dose message")
			return true
		}
		if patientID != nil {
			var dose model.ScheduledDose
			if err := json.Unmarshal(ev.Payload, &dose); err != nil || dose.PatientID != *patientID {
				return true
			}
		}

		c.SSEvent("dose_due", ev.Payload)
		return true
	})
}
