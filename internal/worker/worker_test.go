package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository/memory"
	"github.com/jwalitptl/hmis-api/pkg/logger"
	"github.com/jwalitptl/hmis-api/pkg/messaging"
	memorybroker "github.com/jwalitptl/hmis-api/pkg/messaging/memory"
	"github.com/jwalitptl/hmis-api/pkg/metrics"
)

func seedDoses(t *testing.T, store *memory.Store, times ...time.Time) {
	t.Helper()
	itemID := uuid.New()
	var doses []*model.ScheduledDose
	for _, at := range times {
		doses = append(doses, &model.ScheduledDose{
			ID:                 uuid.New(),
			PrescriptionItemID: itemID,
			PatientID:          uuid.New(),
			ScheduledTime:      at,
			Status:             model.DoseStatusPending,
		})
	}
	n, err := store.Doses().InsertBatch(context.Background(), doses)
	require.NoError(t, err)
	require.Equal(t, len(times), n)
}

func TestDuePoller_Poll(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedDoses(t, store, now.Add(-2*time.Hour), now, now.Add(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := memorybroker.NewBroker()
	defer broker.Close()
	sub, err := broker.Subscribe(ctx, messaging.ChannelDosesDue)
	require.NoError(t, err)

	m := metrics.New("test")
	p := NewDuePoller(store.Doses(), broker, time.Minute, logger.Nop(), m)
	p.now = func() time.Time { return now }

	n, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DueDoses))

	for i := 0; i < 2; i++ {
		select {
		case raw := <-sub:
			var msg struct {
				Type    string              `json:"type"`
				Payload model.ScheduledDose `json:"payload"`
			}
			require.NoError(t, json.Unmarshal(raw, &msg))
			assert.Equal(t, model.EventDoseDue, msg.Type)
			assert.Equal(t, model.DoseStatusDue, msg.Payload.Status)
		case <-time.After(time.Second):
			t.Fatal("due dose not published")
		}
	}

	// already due doses are not announced twice
	n, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DueDoses))
}

func TestDuePoller_StoreError(t *testing.T) {
	store := memory.NewStore()
	store.FailWith = errors.New("down")
	p := NewDuePoller(store.Doses(), memorybroker.NewBroker(), time.Minute, logger.Nop(), metrics.New("test"))

	_, err := p.Poll(context.Background())
	assert.Error(t, err)
}

func TestOutboxCleanupWorker(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Outbox().Create(ctx, &model.OutboxEvent{EventType: model.EventDoseSkipped, Payload: json.RawMessage(`{}`)}))
	}
	events := store.OutboxEvents()
	require.NoError(t, store.Outbox().UpdateStatus(ctx, events[0].ID, model.OutboxStatusProcessed, nil, nil))
	require.NoError(t, store.Outbox().UpdateStatus(ctx, events[1].ID, model.OutboxStatusFailed, nil, nil))

	w := NewOutboxCleanupWorker(store.Outbox(), time.Hour, time.Minute, logger.Nop())
	n, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	w.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = w.Cleanup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Len(t, store.OutboxEvents(), 2)
}
