package authz

import (
	"context"
	"encoding/json"

	"github.com/jwalitptl/hmis-api/internal/model"
	"github.com/jwalitptl/hmis-api/pkg/messaging"
)

// Subscriber is the receive side of a message broker.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// invalidatingEvents are the domain events after which cached grants may be
// wrong.
var invalidatingEvents = map[string]bool{
	model.EventRolePermissionChanged: true,
	model.EventUserRoleAssigned:      true,
	model.EventUserRoleRemoved:       true,
}

// WatchChanges flushes the cache whenever a permission or role assignment
// change made by any process reaches the domain event channel. It blocks until
// ctx is done or the subscription ends.
func (e *Engine) WatchChanges(ctx context.Context, sub Subscriber) error {
	events, err := sub.Subscribe(ctx, messaging.ChannelDomainEvents)
	if err != nil {
		return err
	}

	for raw := range events {
		var msg messaging.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			e.logger.Warn().Err(err).Msg("Skipping undecodable domain event")
			continue
		}
		if invalidatingEvents[msg.Type] {
			e.Invalidate()
			e.logger.Debug().Str("event_type", msg.Type).Msg("Permission cache flushed")
		}
	}
	return ctx.Err()
}
