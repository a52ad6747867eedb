// Package events provides fan-out notification of server lifecycle changes.
//
// Subscribers attached with Subscribe receive events on their own buffered
// channel; a subscriber that does not keep up loses events instead of
// slowing down the publisher. Every event is additionally published as a JSON
// message on a watermill GoChannel topic for infrastructure consumers such as
// the audit recorder.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/models"
)

// Topic is the watermill topic every event is mirrored to
const Topic = "fleet.events"

// DefaultSubscriberBuffer is the channel size of a subscription
const DefaultSubscriberBuffer = 128

// Bus fans events out to subscribers
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	pubsub    *gochannel.GoChannel
	bufSize   int
	published atomic.Uint64
	dropped   atomic.Uint64
	now       func() time.Time
}

// NewBus creates an event bus whose subscriptions buffer bufferSize events
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Bus{
		subs: make(map[*Subscription]struct{}),
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: int64(bufferSize),
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		bufSize: bufferSize,
		now:     time.Now,
	}
}

// Publish delivers evt to every matching subscriber without blocking.
// ID and Timestamp are filled in when empty.
func (b *Bus) Publish(evt models.Event) {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)

	for sub := range b.subs {
		if !sub.matches(evt.Type) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
		}
	}

	b.mirror(evt)
}

// mirror publishes evt on the watermill topic
func (b *Bus) mirror(evt models.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"server_id":  evt.ServerID,
			"event_type": string(evt.Type),
			"error":      err.Error(),
		}).Error("Failed to encode event for topic")
		return
	}

	msg := message.NewMessage(evt.ID, payload)
	msg.Metadata.Set("server_id", evt.ServerID)
	msg.Metadata.Set("event_type", string(evt.Type))

	if err := b.pubsub.Publish(Topic, msg); err != nil {
		logger.WithFields(map[string]interface{}{
			"server_id": evt.ServerID,
			"error":     err.Error(),
		}).Warn("Failed to mirror event to topic")
	}
}

// Subscribe attaches a subscriber for the given event types, or for every
// event when none are given.
func (b *Bus) Subscribe(types ...models.EventType) *Subscription {
	sub := &Subscription{
		ch:  make(chan models.Event, b.bufSize),
		bus: b,
	}
	if len(types) > 0 {
		sub.types = make(map[models.EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// SubscribeTopic returns the raw watermill message stream of the bus.
// Each message must be acked by the consumer.
func (b *Bus) SubscribeTopic(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, Topic)
}

// Stats returns how many events were published and how many deliveries were dropped
func (b *Bus) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}

// Close detaches every subscriber and shuts down the topic
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
	b.mu.Unlock()

	return b.pubsub.Close()
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Subscription receives events from the bus
type Subscription struct {
	ch      chan models.Event
	types   map[models.EventType]struct{}
	bus     *Bus
	dropped atomic.Uint64
}

func (s *Subscription) matches(t models.EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// C returns the event channel; it is closed when the subscription ends
func (s *Subscription) C() <-chan models.Event {
	return s.ch
}

// Dropped returns how many events this subscriber missed because its buffer was full
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}
