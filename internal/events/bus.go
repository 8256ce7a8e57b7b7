package events

import (
	"context"
	"encoding/json"

	"habita-chat/pkg/logger"
)

// Publisher sends a raw payload to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber delivers payloads from the given channel patterns until the
// context is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error
}

// Bus fans envelopes out to channels. Publish failures are logged, not
// returned: the durable write already happened and realtime delivery is
// a liveness concern, not a correctness one.
type Bus struct {
	pub Publisher
	log *logger.Logger
}

func NewBus(pub Publisher, log *logger.Logger) *Bus {
	return &Bus{pub: pub, log: log}
}

func (b *Bus) Emit(ctx context.Context, env Envelope, channels ...string) {
	if b == nil || b.pub == nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		b.log.Errorf("marshal envelope %s: %v", env.EventType, err)
		return
	}
	for _, ch := range channels {
		if err := b.pub.Publish(ctx, ch, data); err != nil {
			b.log.Errorf("publish %s to %s: %v", env.EventType, ch, err)
		}
	}
}
