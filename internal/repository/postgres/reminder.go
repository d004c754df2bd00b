package postgres

import (
	"context"
	"fmt"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
)

type reminderLogRepository struct {
	BaseRepository
}

func NewReminderLogRepository(base BaseRepository) repository.ReminderLogRepository {
	return &reminderLogRepository{base}
}

func (r *reminderLogRepository) Create(ctx context.Context, log *model.ReminderLog) error {
	query := `
		INSERT INTO reminder_logs (
			id, channel, recipient, appointment_id, message_type, body,
			success, message_id, error, created_at
		) VALUES (
			:id, :channel, :recipient, :appointment_id, :message_type, :body,
			:success, :message_id, :error, :created_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("failed to create reminder log: %w", err)
	}
	return nil
}
