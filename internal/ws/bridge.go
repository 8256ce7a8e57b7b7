package ws

import (
	"context"

	"habita-chat/internal/events"
)

// Bridge pipes user-channel events from Redis into the hub so every
// connected client's directory view refreshes, whichever instance
// produced the event.
type Bridge struct {
	subscriber events.Subscriber
	hub        *Hub
}

func NewBridge(subscriber events.Subscriber, hub *Hub) *Bridge {
	return &Bridge{subscriber: subscriber, hub: hub}
}

func (b *Bridge) Run(ctx context.Context) error {
	pattern := events.ChannelPrefixUser + "*"
	return b.subscriber.Subscribe(ctx, []string{pattern}, func(channel string, payload []byte) {
		b.hub.Broadcast(channel, payload)
	})
}
