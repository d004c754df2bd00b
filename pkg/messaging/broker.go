package messaging

import (
	"context"
)

// Channels published by the service.
const (
	ChannelDomainEvents = "hmis.events"
	ChannelDosesDue     = "doses.due"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Message is the envelope written to every channel.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
