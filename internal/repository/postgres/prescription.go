package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
)

type prescriptionRepository struct {
	BaseRepository
}

func NewPrescriptionRepository(base BaseRepository) repository.PrescriptionRepository {
	return &prescriptionRepository{base}
}

func (r *prescriptionRepository) GetItem(ctx context.Context, id uuid.UUID) (*model.PrescriptionItem, error) {
	query := `
		SELECT pi.id, pi.prescription_id, p.patient_id, pi.medication_name, pi.dosage,
			pi.frequency, pi.route, pi.duration_days, COALESCE(pi.instructions, '') AS instructions,
			pi.created_at
		FROM prescription_items pi
		JOIN prescriptions p ON p.id = pi.prescription_id
		WHERE pi.id = $1
	`

	var item model.PrescriptionItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, fmt.Errorf("failed to get prescription item: %w", notFound(err))
	}
	return &item, nil
}
