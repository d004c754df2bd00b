package event

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository/memory"
)

func TestEventService_Emit(t *testing.T) {
	store := memory.NewStore()
	svc := NewEventService(store.Outbox(), zerolog.Nop())

	require.NoError(t, svc.Emit(context.Background(), model.EventDoseSkipped, map[string]string{"dose_id": "d1"}))

	events := store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventDoseSkipped, events[0].EventType)
	assert.Equal(t, model.OutboxStatusPending, events[0].Status)
	assert.JSONEq(t, `{"dose_id":"d1"}`, string(events[0].Payload))
}

func TestEventService_EmitErrors(t *testing.T) {
	store := memory.NewStore()
	svc := NewEventService(store.Outbox(), zerolog.Nop())

	assert.Error(t, svc.Emit(context.Background(), "BAD", make(chan int)))

	store.FailWith = errors.New("down")
	assert.Error(t, svc.Emit(context.Background(), model.EventDoseSkipped, nil))
	assert.NotPanics(t, func() { svc.Publish(context.Background(), model.EventDoseSkipped, nil) })
}
