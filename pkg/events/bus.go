// Package events carries server-side notifications from background workers
// to connected clients. A Bus broadcasts to every subscriber; the SSE
// endpoint turns one subscription into a text/event-stream response.
package events

import (
	"context"
	"reflect"
	"sync"

	"github.com/iancoleman/strcase"
	"github.com/robinjoseph08/golib/logger"
)

// subscriberBuffer is the per-subscriber queue depth. A subscriber that
// falls this far behind is dropped; the client may reconnect.
const subscriberBuffer = 64

// Event is a broadcast message: a string kind plus a JSON-serialisable
// payload.
type Event struct {
	Kind    string
	Payload interface{}
}

// Subscription is one receiver on the bus. Its channel closes when the
// subscriber is dropped or the bus shuts down.
type Subscription struct {
	id int64
	ch chan Event
}

// Events returns the receive channel.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Bus is an in-process broadcast channel. Publishing never blocks.
type Bus struct {
	mu     sync.Mutex
	subs   map[int64]*Subscription
	nextID int64
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: map[int64]*Subscription{}}
}

// Subscribe registers a receiver for every event published afterwards.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, ch: make(chan Event, subscriberBuffer)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Safe to call
// after the subscriber was already dropped.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sub.id)
}

// Publish broadcasts payload under a kind derived from its type name
// (ExtractMetaError -> "extract_meta_error"). Subscribers with a full buffer
// are dropped so the publisher never blocks.
func (b *Bus) Publish(ctx context.Context, payload interface{}) {
	b.PublishKind(ctx, KindOf(payload), payload)
}

// PublishKind broadcasts payload under an explicit kind.
func (b *Bus) PublishKind(ctx context.Context, kind string, payload interface{}) {
	event := Event{Kind: kind, Payload: payload}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			logger.FromContext(ctx).
				Data(logger.Data{"kind": kind, "subscriber": id}).
				Warn("dropping slow event subscriber")
			b.remove(id)
		}
	}
}

// Close drops every subscriber. Used on shutdown.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id := range b.subs {
		b.remove(id)
	}
}

// remove must be called with the lock held.
func (b *Bus) remove(id int64) {
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// KindOf derives the wire kind of a payload from its Go type name.
func KindOf(payload interface{}) string {
	t := reflect.TypeOf(payload)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	return strcase.ToSnake(t.Name())
}
