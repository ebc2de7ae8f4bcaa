// Package events provides the typed publish/subscribe bus that connects the
// session registry and dispatch engine to their observers (activity log,
// now-playing trackers, auth guards).
//
// Delivery is synchronous, in registration order, with per-subscriber
// failure isolation: a subscriber that panics is logged and skipped, and the
// remaining subscribers still receive the event.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/harborview/mediahub/pkg/slogx"
)

// Handler receives a published event. Handlers run on the publisher's
// goroutine and should return quickly.
type Handler func(ctx context.Context, ev Event)

type subscriber struct {
	id int
	fn Handler
}

// Bus is a registry of subscriber callbacks per event kind. The zero value
// is not usable; call NewBus.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Kind][]subscriber
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]subscriber)}
}

// Subscribe registers fn for the given kinds and returns a function that
// removes the registration. Subscribing the same handler twice delivers the
// event twice.
func (b *Bus) Subscribe(fn Handler, kinds ...Kind) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	for _, k := range kinds {
		b.subs[k] = append(b.subs[k], subscriber{id: id, fn: fn})
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, k := range kinds {
			list := b.subs[k]
			for i := range list {
				if list[i].id == id {
					b.subs[k] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		}
	}
}

// Publish delivers ev to every subscriber of its kind, in registration
// order. A failing subscriber does not prevent delivery to the rest.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	list := b.subs[ev.Kind()]
	// Copy so an unsubscribe during delivery cannot shift the slice under us.
	snapshot := make([]subscriber, len(list))
	copy(snapshot, list)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		b.deliver(ctx, sub, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slogx.FromContext(ctx).Error("event subscriber panicked",
				slog.String("event", string(ev.Kind())),
				slog.Any("panic", r),
			)
		}
	}()
	sub.fn(ctx, ev)
}
