package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
)

type administrationLogRepository struct {
	BaseRepository
}

func NewAdministrationLogRepository(base BaseRepository) repository.AdministrationLogRepository {
	return &administrationLogRepository{base}
}

func (r *administrationLogRepository) List(ctx context.Context, filters *model.AdministrationLogFilters) ([]*model.MedicationAdministrationLog, error) {
	if filters == nil {
		filters = &model.AdministrationLogFilters{}
	}

	var conditions []string
	var args []interface{}

	if filters.PatientID != nil {
		args = append(args, *filters.PatientID)
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filters.AdministeredBy != nil {
		args = append(args, *filters.AdministeredBy)
		conditions = append(conditions, fmt.Sprintf("administered_by = $%d", len(args)))
	}
	if filters.From != nil {
		args = append(args, *filters.From)
		conditions = append(conditions, fmt.Sprintf("administered_at >= $%d", len(args)))
	}
	if filters.To != nil {
		args = append(args, *filters.To)
		conditions = append(conditions, fmt.Sprintf("administered_at <= $%d", len(args)))
	}

	query := `
		SELECT id, prescription_item_id, scheduled_dose_id, patient_id, administered_by,
			administered_at, dosage_given, route, notes, status, reason_not_given, created_at
		FROM medication_administration_log`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, filters.Limit(), filters.Offset())
	query += fmt.Sprintf(" ORDER BY administered_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var entries []*model.MedicationAdministrationLog
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list administration log: %w", err)
	}
	return entries, nil
}
