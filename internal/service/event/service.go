package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository"
)

// Emitter queues a domain event for the outbox processor.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload interface{}) error
}

type EventService struct {
	outboxRepo repository.OutboxRepository
	logger     zerolog.Logger
}

func NewEventService(outboxRepo repository.OutboxRepository, logger zerolog.Logger) *EventService {
	return &EventService{outboxRepo: outboxRepo, logger: logger}
}

var _ Emitter = (*EventService)(nil)

func (s *EventService) Emit(ctx context.Context, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now().UTC()
	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payloadJSON,
		Status:    model.OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.outboxRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	s.logger.Debug().Str("event_type", eventType).Str("event_id", event.ID.String()).Msg("event queued")
	return nil
}

// Publish is Emit for callers whose own write has already committed.
func (s *EventService) Publish(ctx context.Context, eventType string, payload interface{}) {
	if err := s.Emit(ctx, eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to queue event")
	}
}
