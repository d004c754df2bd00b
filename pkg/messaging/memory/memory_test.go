package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hmis-api/pkg/messaging"
)

func TestBroker_PublishSubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, messaging.ChannelDosesDue)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, messaging.ChannelDosesDue, messaging.Message{Type: "DOSE_DUE", Payload: "abc"}))

	select {
	case raw := <-ch:
		var msg messaging.Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "DOSE_DUE", msg.Type)
		assert.Equal(t, "abc", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestBroker_OtherChannelNotDelivered(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ctx := context.Background()
	ch, err := b.Subscribe(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "b", "x"))

	select {
	case <-ch:
		t.Fatal("unexpected delivery")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_CancelClosesChannel(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "a")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}
