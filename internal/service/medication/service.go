package medication

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
	"github.com/jwalitptl/hmis-api/internal/service/audit"
	"github.com/jwalitptl/hmis-api/internal/service/authz"
	"github.com/jwalitptl/hmis-api/internal/service/event"
	apperrors "github.com/jwalitptl/hmis-api/pkg/errors"
	"github.com/jwalitptl/hmis-api/pkg/metrics"
)

const (
	DefaultDaysAhead = 7
	MaxDaysAhead     = 90
	// DueSoonWindow is how far ahead a pending dose counts as due soon.
	DueSoonWindow = time.Hour
)

var (
	ErrAlreadyTerminal  = errors.New("dose already administered, skipped or cancelled")
	ErrReasonRequired   = errors.New("a reason is required to skip a dose")
	ErrPrincipalLoading = errors.New("roles are still being resolved")
)

// Authorizer is the part of the authorization engine the tracker needs.
type Authorizer interface {
	Gate(ctx context.Context, p authz.Principal, req authz.Requirement) authz.GateResult
}

type Service struct {
	items   repository.PrescriptionRepository
	doses   repository.DoseRepository
	logs    repository.AdministrationLogRepository
	authz   Authorizer
	auditor *audit.Service
	events  *event.EventService
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(
	items repository.PrescriptionRepository,
	doses repository.DoseRepository,
	logs repository.AdministrationLogRepository,
	authorizer Authorizer,
	auditor *audit.Service,
	events *event.EventService,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	if m == nil {
		m = metrics.New("hmis")
	}
	return &Service{
		items:   items,
		doses:   doses,
		logs:    logs,
		authz:   authorizer,
		auditor: auditor,
		events:  events,
		metrics: m,
		logger:  logger.With().Str("component", "medication").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) authorize(ctx context.Context, p authz.Principal, action model.Action) error {
	if !p.Authenticated() {
		return apperrors.Unauthorized(nil)
	}
	switch s.authz.Gate(ctx, p, authz.Requirement{Module: model.ModuleMedications, Action: action}) {
	case authz.GateAllowed:
		return nil
	case authz.GateLoading:
		return &apperrors.AppError{Code: apperrors.ErrUnavailable, Message: ErrPrincipalLoading.Error(), Err: ErrPrincipalLoading}
	default:
		return apperrors.Forbidden(nil)
	}
}

// doseError maps a dose store error. Anything unrecognised is a store failure.
func (s *Service) doseError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("scheduled dose", err)
	case errors.Is(err, repository.ErrDoseNotOpen):
		s.metrics.AdministrationConflicts.Inc()
		return apperrors.Conflict(ErrAlreadyTerminal.Error(), ErrAlreadyTerminal)
	}
	return apperrors.Unavailable(err)
}

// Classify buckets an open dose relative to now. Terminal doses are never
// overdue or due soon.
func Classify(dose *model.ScheduledDose, now time.Time) model.DoseWindow {
	if dose.Status.Terminal() {
		return model.DoseWindowLater
	}
	switch {
	case dose.ScheduledTime.Before(now):
		return model.DoseWindowOverdue
	case !dose.ScheduledTime.After(now.Add(DueSoonWindow)):
		return model.DoseWindowDueSoon
	}
	return model.DoseWindowLater
}

func decorate(doses []*model.ScheduledDose, now time.Time) []*model.DueDose {
	out := make([]*model.DueDose, len(doses))
	for i, d := range doses {
		out[i] = &model.DueDose{ScheduledDose: *d, Window: Classify(d, now)}
	}
	return out
}

type GenerateRequest struct {
	PrescriptionID uuid.UUID
	ItemID         uuid.UUID
	PatientID      uuid.UUID
	StartDate      time.Time
	DaysAhead      int
}

// GenerateScheduledDoses expands the item's frequency over
// [StartDate, StartDate+DaysAhead days]. Times already scheduled for the item
// are skipped, so reruns are safe. It returns the number of doses created.
func (s *Service) GenerateScheduledDoses(ctx context.Context, p authz.Principal, req GenerateRequest) (int, error) {
	if err := s.authorize(ctx, p, model.ActionCreate); err != nil {
		return 0, err
	}

	days := req.DaysAhead
	if days == 0 {
		days = DefaultDaysAhead
	}
	if days < 0 || days > MaxDaysAhead {
		return 0, apperrors.BadRequest("days_ahead must be between 1 and 90", nil)
	}

	item, err := s.items.GetItem(ctx, req.ItemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, apperrors.NotFound("prescription item", err)
		}
		return 0, apperrors.Unavailable(err)
	}
	if req.PrescriptionID != uuid.Nil && req.PrescriptionID != item.PrescriptionID {
		return 0, apperrors.BadRequest("prescription item does not belong to prescription", nil)
	}
	if req.PatientID != uuid.Nil && req.PatientID != item.PatientID {
		return 0, apperrors.BadRequest("prescription item does not belong to patient", nil)
	}

	schedule, err := ParseFrequency(item.Frequency)
	if err != nil {
		return 0, apperrors.BadRequest(err.Error(), err)
	}
	if schedule.AsNeeded() {
		return 0, nil
	}

	start := req.StartDate
	if start.IsZero() {
		start = s.now()
	}
	now := s.now()
	var doses []*model.ScheduledDose
	for _, at := range schedule.Times(start, start.AddDate(0, 0, days)) {
		doses = append(doses, &model.ScheduledDose{
			ID:                 uuid.New(),
			PrescriptionID:     item.PrescriptionID,
			PrescriptionItemID: item.ID,
			PatientID:          item.PatientID,
			ScheduledTime:      at,
			Dosage:             item.Dosage,
			Frequency:          item.Frequency,
			Route:              item.Route,
			Status:             model.DoseStatusPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}
	if len(doses) == 0 {
		return 0, nil
	}

	created, err := s.doses.InsertBatch(ctx, doses)
	if err != nil {
		return 0, apperrors.Unavailable(err)
	}
	s.metrics.DosesGenerated.Add(float64(created))
	s.logger.Info().
		Str("prescription_item_id", item.ID.String()).
		Int("candidates", len(doses)).
		Int("created", created).
		Msg("generated scheduled doses")

	if created > 0 {
		s.auditor.Record(ctx, p.UserID, model.AuditActionGenerate, model.AuditEntityPrescription, item.ID.String(), &audit.LogOptions{
			Metadata: map[string]interface{}{"created": created, "days_ahead": days, "start": start},
		})
		s.events.Publish(ctx, model.EventDosesGenerated, map[string]interface{}{
			"prescription_item_id": item.ID,
			"patient_id":           item.PatientID,
			"created":              created,
		})
	}
	return created, nil
}

// ListDue returns open doses scheduled at or before asOf, oldest first.
func (s *Service) ListDue(ctx context.Context, p authz.Principal, patientID *uuid.UUID, asOf time.Time) ([]*model.DueDose, error) {
	if err := s.authorize(ctx, p, model.ActionView); err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}

	doses, err := s.doses.List(ctx, &model.DoseFilters{
		PatientID: patientID,
		Statuses:  model.OpenDoseStatuses,
		To:        &asOf,
	})
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	return decorate(doses, asOf), nil
}

// ListUpcoming returns open doses in (now, now+DueSoonWindow], oldest first.
func (s *Service) ListUpcoming(ctx context.Context, p authz.Principal, patientID *uuid.UUID, now time.Time) ([]*model.DueDose, error) {
	if err := s.authorize(ctx, p, model.ActionView); err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = s.now()
	}

	until := now.Add(DueSoonWindow)
	doses, err := s.doses.List(ctx, &model.DoseFilters{
		PatientID: patientID,
		Statuses:  model.OpenDoseStatuses,
		From:      &now,
		To:        &until,
	})
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	return decorate(doses, now), nil
}

type AdministerRequest struct {
	DoseID      uuid.UUID
	DosageGiven string
	Route       string
	Notes       *string
}

// RecordAdministration marks an open dose administered by the principal and
// appends one administration log row in the same transaction.
func (s *Service) RecordAdministration(ctx context.Context, p authz.Principal, req AdministerRequest) (*model.ScheduledDose, *model.MedicationAdministrationLog, error) {
	if err := s.authorize(ctx, p, model.ActionEdit); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(req.DosageGiven) == "" || strings.TrimSpace(req.Route) == "" {
		return nil, nil, apperrors.BadRequest("dosage_given and route are required", nil)
	}

	dose, entry, err := s.doses.RecordAdministration(ctx, &model.AdministrationRecord{
		DoseID:         req.DoseID,
		AdministeredBy: p.UserID,
		AdministeredAt: s.now(),
		DosageGiven:    req.DosageGiven,
		Route:          req.Route,
		Notes:          req.Notes,
	})
	if err != nil {
		s.metrics.DoseTransitions.WithLabelValues(string(model.DoseStatusAdministered), "rejected").Inc()
		return nil, nil, s.doseError(err)
	}
	s.metrics.DoseTransitions.WithLabelValues(string(model.DoseStatusAdministered), "ok").Inc()

	s.events.Publish(ctx, model.EventDoseAdministered, map[string]interface{}{
		"dose_id":         dose.ID,
		"patient_id":      dose.PatientID,
		"administered_by": p.UserID,
		"administered_at": entry.AdministeredAt,
	})
	return dose, entry, nil
}

// SkipDose marks an open dose skipped with reason in its notes. No
// administration log row is written; the skip is kept in the audit trail.
func (s *Service) SkipDose(ctx context.Context, p authz.Principal, doseID uuid.UUID, reason string) (*model.ScheduledDose, error) {
	if !p.Authenticated() {
		return nil, apperrors.Unauthorized(nil)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.BadRequest(ErrReasonRequired.Error(), ErrReasonRequired)
	}
	if err := s.authorize(ctx, p, model.ActionEdit); err != nil {
		return nil, err
	}

	dose, err := s.doses.Skip(ctx, doseID, reason, s.now())
	if err != nil {
		s.metrics.DoseTransitions.WithLabelValues(string(model.DoseStatusSkipped), "rejected").Inc()
		return nil, s.doseError(err)
	}
	s.metrics.DoseTransitions.WithLabelValues(string(model.DoseStatusSkipped), "ok").Inc()

	s.auditor.Record(ctx, p.UserID, model.AuditActionSkip, model.AuditEntityScheduledDose, dose.ID.String(), &audit.LogOptions{
		Metadata: map[string]string{"reason": reason},
	})
	s.events.Publish(ctx, model.EventDoseSkipped, map[string]interface{}{
		"dose_id":    dose.ID,
		"patient_id": dose.PatientID,
		"skipped_by": p.UserID,
		"reason":     reason,
	})
	return dose, nil
}

// CancelPending cancels every open dose of a discontinued prescription item.
func (s *Service) CancelPending(ctx context.Context, p authz.Principal, itemID uuid.UUID) (int, error) {
	if err := s.authorize(ctx, p, model.ActionEdit); err != nil {
		return 0, err
	}

	cancelled, err := s.doses.CancelOpen(ctx, itemID, s.now())
	if err != nil {
		return 0, apperrors.Unavailable(err)
	}
	if cancelled == 0 {
		return 0, nil
	}

	s.metrics.DoseTransitions.WithLabelValues(string(model.DoseStatusCancelled), "ok").Add(float64(cancelled))
	s.auditor.Record(ctx, p.UserID, model.AuditActionCancel, model.AuditEntityPrescription, itemID.String(), &audit.LogOptions{
		Metadata: map[string]int{"cancelled": cancelled},
	})
	s.events.Publish(ctx, model.EventDosesCancelled, map[string]interface{}{
		"prescription_item_id": itemID,
		"cancelled":            cancelled,
	})
	return cancelled, nil
}

// AuditLog returns administration log rows, newest first.
func (s *Service) AuditLog(ctx context.Context, p authz.Principal, filters *model.AdministrationLogFilters) ([]*model.MedicationAdministrationLog, error) {
	if err := s.authorize(ctx, p, model.ActionView); err != nil {
		return nil, err
	}
	if filters == nil {
		filters = &model.AdministrationLogFilters{}
	}

	logs, err := s.logs.List(ctx, filters)
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	return logs, nil
}
