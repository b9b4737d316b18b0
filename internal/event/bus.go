package event

import (
	"log/slog"
	"sync"
)

// Subscription identifies a registered callback so it can be removed with
// [Bus.Off]. Go functions are not comparable, so the handle stands in for
// the callback identity.
type Subscription uint64

// Bus is a minimal synchronous publish/subscribe mechanism.
//
// Emit fans out to all callbacks registered for the event's kind, in
// registration order. A callback that panics is recovered and logged; it
// never breaks the emitting loop or affects sibling callbacks. There is no
// persistence, no replay, and no ordering guarantee across distinct kinds.
//
// All methods are safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	next Subscription
	subs map[Kind][]subscriber
}

type subscriber struct {
	id Subscription
	fn func(Event)
}

// NewBus returns an initialised [Bus].
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]subscriber)}
}

// On registers fn for events of the given kind and returns a handle for
// [Bus.Off]. Callbacks run synchronously on the emitting goroutine.
func (b *Bus) On(kind Kind, fn func(Event)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	b.subs[kind] = append(b.subs[kind], subscriber{id: b.next, fn: fn})
	return b.next
}

// Off removes the callback registered under sub for the given kind.
// Removing an unknown subscription is a no-op.
func (b *Bus) Off(kind Kind, sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[kind]
	for i, s := range list {
		if s.id == sub {
			b.subs[kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit delivers ev to every callback registered for its kind, in
// registration order.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	list := b.subs[ev.EventKind()]
	fns := make([]subscriber, len(list))
	copy(fns, list)
	b.mu.RUnlock()

	for _, s := range fns {
		b.deliver(s, ev)
	}
}

// deliver runs one callback, converting a panic into a log entry.
func (b *Bus) deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event: subscriber panicked",
				"kind", ev.EventKind(),
				"panic", r,
			)
		}
	}()
	s.fn(ev)
}
