package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/internal/repository/memory"
	"github.com/jwalitptl/hmis-api/pkg/logger"
	"github.com/jwalitptl/hmis-api/pkg/messaging"
	memorybroker "github.com/jwalitptl/hmis-api/pkg/messaging/memory"
	"github.com/jwalitptl/hmis-api/pkg/metrics"
)

type failingBroker struct {
	*memorybroker.Broker
	err error
}

func (b *failingBroker) Publish(context.Context, string, interface{}) error {
	return b.err
}

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		Lease:         time.Minute,
	}
}

func TestOutboxProcessor_Publishes(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Outbox().Create(ctx, &model.OutboxEvent{
		EventType: model.EventDoseAdministered,
		Payload:   json.RawMessage(`{"dose_id":"d1"}`),
	}))

	broker := memorybroker.NewBroker()
	defer broker.Close()
	sub, err := broker.Subscribe(ctx, messaging.ChannelDomainEvents)
	require.NoError(t, err)

	p := NewOutboxProcessor(store.Outbox(), broker, testConfig(), logger.Nop(), metrics.New("test"))
	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case raw := <-sub:
		assert.JSONEq(t, `{"type":"DOSE_ADMINISTERED","payload":{"dose_id":"d1"}}`, string(raw))
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}

	events := store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusProcessed, events[0].Status)
	assert.NotNil(t, events[0].ProcessedAt)

	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxProcessor_RetriesThenFails(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Outbox().Create(ctx, &model.OutboxEvent{EventType: model.EventDoseSkipped, Payload: json.RawMessage(`{}`)}))

	broker := &failingBroker{err: errors.New("redis down")}
	p := NewOutboxProcessor(store.Outbox(), broker, testConfig(), logger.Nop(), metrics.New("test"))

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := p.ProcessBatch(ctx)
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	events := store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusFailed, events[0].Status)
	assert.Equal(t, 2, events[0].RetryCount)
	require.NotNil(t, events[0].ErrorMessage)
	assert.Equal(t, "redis down", *events[0].ErrorMessage)

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxProcessor_ClaimError(t *testing.T) {
	store := memory.NewStore()
	store.FailWith = errors.New("down")
	p := NewOutboxProcessor(store.Outbox(), memorybroker.NewBroker(), testConfig(), logger.Nop(), metrics.New("test"))

	_, err := p.ProcessBatch(context.Background())
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, backoff(time.Second, 0))
	assert.Equal(t, 4*time.Second, backoff(time.Second, 2))
	assert.Equal(t, backoff(time.Second, 10), backoff(time.Second, 50))
}

func TestNewOutboxProcessor_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Lease = 0
	assert.Panics(t, func() {
		NewOutboxProcessor(memory.NewStore().Outbox(), memorybroker.NewBroker(), cfg, logger.Nop(), metrics.New("test"))
	})
}
