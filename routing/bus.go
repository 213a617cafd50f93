package routing

import (
	"context"
	"sync"

	"github.com/c360/eventrouter/errors"
	"github.com/c360/eventrouter/natsclient"
)

// Handler receives events delivered by the bus
type Handler func(ctx context.Context, event Event)

// Bus is the host event bus boundary the engine taps. The bridge
// subscribes once to the full event namespace and performs pattern
// matching in-process.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, handler Handler) error
}

// NATSBus carries events over NATS subjects under the events prefix
type NATSBus struct {
	client *natsclient.Client
}

// NewNATSBus creates a bus backed by a connected NATS client
func NewNATSBus(client *natsclient.Client) *NATSBus {
	return &NATSBus{client: client}
}

// Publish emits an event to its subject
func (b *NATSBus) Publish(ctx context.Context, event Event) error {
	data, err := event.Marshal()
	if err != nil {
		return errors.WrapInvalid(err, "NATSBus", "Publish", "marshal event")
	}
	if err := b.client.Publish(ctx, NameToSubject(event.Name), data); err != nil {
		return errors.WrapTransient(err, "NATSBus", "Publish", "publish to "+event.Name)
	}
	return nil
}

// Subscribe taps the full event namespace. Malformed payloads are
// dropped; the bus does not redeliver.
func (b *NATSBus) Subscribe(ctx context.Context, handler Handler) error {
	return b.client.Subscribe(ctx, SubjectPrefix+".>", func(msgCtx context.Context, data []byte) {
		event, err := UnmarshalEvent(data)
		if err != nil {
			return
		}
		handler(msgCtx, event)
	})
}

// InProcBus is an in-process bus for embedding and tests. Delivery is
// synchronous in publish order.
type InProcBus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewInProcBus creates an empty in-process bus
func NewInProcBus() *InProcBus {
	return &InProcBus{}
}

// Publish delivers the event to every subscriber
func (b *InProcBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, event)
	}
	return nil
}

// Subscribe registers a handler for all events
func (b *InProcBus) Subscribe(_ context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	return nil
}
