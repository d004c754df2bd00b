package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
)

type doseRepository struct {
	BaseRepository
}

func NewDoseRepository(base BaseRepository) repository.DoseRepository {
	return &doseRepository{base}
}

const doseColumns = `id, prescription_id, prescription_item_id, patient_id, scheduled_time,
	dosage, frequency, route, status, administered_at, administered_by, notes, created_at, updated_at`

func (r *doseRepository) InsertBatch(ctx context.Context, doses []*model.ScheduledDose) (int, error) {
	if len(doses) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO scheduled_doses (
			id, prescription_id, prescription_item_id, patient_id, scheduled_time,
			dosage, frequency, route, status, created_at, updated_at
		) VALUES (
			:id, :prescription_id, :prescription_item_id, :patient_id, :scheduled_time,
			:dosage, :frequency, :route, :status, :created_at, :updated_at
		)
		ON CONFLICT (prescription_item_id, scheduled_time) DO NOTHING
	`

	var inserted int64
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, d := range doses {
			result, err := stmt.ExecContext(ctx, d)
			if err != nil {
				return err
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			inserted += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert scheduled doses: %w", err)
	}
	return int(inserted), nil
}

func (r *doseRepository) Get(ctx context.Context, id uuid.UUID) (*model.ScheduledDose, error) {
	query := `SELECT ` + doseColumns + ` FROM scheduled_doses WHERE id = $1`

	var dose model.ScheduledDose
	if err := r.db.GetContext(ctx, &dose, query, id); err != nil {
		return nil, fmt.Errorf("failed to get scheduled dose: %w", notFound(err))
	}
	return &dose, nil
}

func (r *doseRepository) List(ctx context.Context, filters *model.DoseFilters) ([]*model.ScheduledDose, error) {
	var conditions []string
	var args []interface{}

	if filters != nil {
		if filters.PatientID != nil {
			args = append(args, *filters.PatientID)
			conditions = append(conditions, fmt.Sprintf("patient_id = $%d", len(args)))
		}
		if len(filters.Statuses) > 0 {
			placeholders := make([]string, len(filters.Statuses))
			for i, s := range filters.Statuses {
				args = append(args, s)
				placeholders[i] = fmt.Sprintf("$%d", len(args))
			}
			conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
		}
		if filters.From != nil {
			args = append(args, *filters.From)
			conditions = append(conditions, fmt.Sprintf("scheduled_time > $%d", len(args)))
		}
		if filters.To != nil {
			args = append(args, *filters.To)
			conditions = append(conditions, fmt.Sprintf("scheduled_time <= $%d", len(args)))
		}
	}

	query := `SELECT ` + doseColumns + ` FROM scheduled_doses`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY scheduled_time ASC, id ASC"

	var doses []*model.ScheduledDose
	if err := r.db.SelectContext(ctx, &doses, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list scheduled doses: %w", err)
	}
	return doses, nil
}

func (r *doseRepository) RecordAdministration(ctx context.Context, rec *model.AdministrationRecord) (*model.ScheduledDose, *model.MedicationAdministrationLog, error) {
	updateQuery := `
		UPDATE scheduled_doses
		SET status = 'administered',
			administered_at = $2,
			administered_by = $3,
			notes = $4,
			updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'due')
		RETURNING ` + doseColumns

	insertQuery := `
		INSERT INTO medication_administration_log (
			id, prescription_item_id, scheduled_dose_id, patient_id, administered_by,
			administered_at, dosage_given, route, notes, status, created_at
		) VALUES (
			:id, :prescription_item_id, :scheduled_dose_id, :patient_id, :administered_by,
			:administered_at, :dosage_given, :route, :notes, :status, :created_at
		)
	`

	var dose model.ScheduledDose
	var entry *model.MedicationAdministrationLog

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &dose, updateQuery, rec.DoseID, rec.AdministeredAt, rec.AdministeredBy, rec.Notes)
		if err != nil {
			if notFound(err) == repository.ErrNotFound {
				return r.openCheck(ctx, tx, rec.DoseID)
			}
			return err
		}

		doseID := dose.ID
		entry = &model.MedicationAdministrationLog{
			ID:                 uuid.New(),
			PrescriptionItemID: dose.PrescriptionItemID,
			ScheduledDoseID:    &doseID,
			PatientID:          dose.PatientID,
			AdministeredBy:     rec.AdministeredBy,
			AdministeredAt:     rec.AdministeredAt,
			DosageGiven:        rec.DosageGiven,
			Route:              rec.Route,
			Notes:              rec.Notes,
			Status:             model.AdministrationStatusAdministered,
			CreatedAt:          rec.AdministeredAt,
		}
		_, err = tx.NamedExecContext(ctx, insertQuery, entry)
		return err
	})
	if err != nil {
		if err == repository.ErrNotFound || err == repository.ErrDoseNotOpen {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to record administration: %w", err)
	}
	return &dose, entry, nil
}

// openCheck distinguishes a missing dose from one that lost the status check.
func (r *doseRepository) openCheck(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM scheduled_doses WHERE id = $1)`, id); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrDoseNotOpen
}

func (r *doseRepository) Skip(ctx context.Context, doseID uuid.UUID, reason string, at time.Time) (*model.ScheduledDose, error) {
	query := `
		UPDATE scheduled_doses
		SET status = 'skipped',
			notes = $2,
			updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'due')
		RETURNING ` + doseColumns

	var dose model.ScheduledDose
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &dose, query, doseID, reason, at)
		if notFound(err) == repository.ErrNotFound {
			return r.openCheck(ctx, tx, doseID)
		}
		return err
	})
	if err != nil {
		if err == repository.ErrNotFound || err == repository.ErrDoseNotOpen {
			return nil, err
		}
		return nil, fmt.Errorf("failed to skip dose: %w", err)
	}
	return &dose, nil
}

func (r *doseRepository) CancelOpen(ctx context.Context, itemID uuid.UUID, at time.Time) (int, error) {
	query := `
		UPDATE scheduled_doses
		SET status = 'cancelled', updated_at = $2
		WHERE prescription_item_id = $1 AND status IN ('pending', 'due')
	`

	result, err := r.db.ExecContext(ctx, query, itemID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel doses: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func (r *doseRepository) MarkDue(ctx context.Context, asOf time.Time) ([]*model.ScheduledDose, error) {
	query := `
		UPDATE scheduled_doses
		SET status = 'due', updated_at = $1
		WHERE status = 'pending' AND scheduled_time <= $1
		RETURNING ` + doseColumns

	var doses []*model.ScheduledDose
	if err := r.db.SelectContext(ctx, &doses, query, asOf); err != nil {
		return nil, fmt.Errorf("failed to mark doses due: %w", err)
	}
	return doses, nil
}
