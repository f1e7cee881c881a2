// Package bus implements the typed publish/subscribe dispatcher that
// decouples the session core from its consumers.
package bus

import (
	"chat-session/domain/event"
	"log/slog"
	"sync"
)

// Handler consumes one published event. Handlers run synchronously on
// the publisher's goroutine, in subscription order.
type Handler func(e event.Event)

// Subscription is the token returned by Subscribe, used to unsubscribe.
type Subscription struct {
	kind event.Kind
	id   uint64
}

type entry struct {
	id uint64
	fn Handler
}

// EventBus dispatches events to subscribed handlers.
//
// A panicking handler never aborts delivery to the remaining handlers;
// the panic is recovered, logged, and optionally counted through the
// panic hook. Unsubscribing while a publish is in flight stops any
// further delivery to that handler but does not undo calls already made.
type EventBus struct {
	mu        sync.Mutex
	log       *slog.Logger
	nextID    uint64
	handlers  map[event.Kind][]entry
	active    map[uint64]bool
	panicHook func(kind event.Kind, recovered any)
}

func New(log *slog.Logger) *EventBus {
	return &EventBus{
		log:      log,
		handlers: make(map[event.Kind][]entry),
		active:   make(map[uint64]bool),
	}
}

// OnHandlerPanic registers a hook called after a handler panic has been
// recovered. Used for observability counters.
func (b *EventBus) OnHandlerPanic(hook func(kind event.Kind, recovered any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.panicHook = hook
}

func (b *EventBus) Subscribe(kind event.Kind, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[kind] = append(b.handlers[kind], entry{id: id, fn: h})
	b.active[id] = true
	return Subscription{kind: kind, id: id}
}

func (b *EventBus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.active, sub.id)

	entries := b.handlers[sub.kind]
	for i, e := range entries {
		if e.id == sub.id {
			b.handlers[sub.kind] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
}

// Publish delivers e to every handler subscribed to its kind, in
// subscription order, on the caller's goroutine.
func (b *EventBus) Publish(e event.Event) {
	b.mu.Lock()
	entries := make([]entry, len(b.handlers[e.Kind()]))
	copy(entries, b.handlers[e.Kind()])
	b.mu.Unlock()

	for _, ent := range entries {
		b.mu.Lock()
		alive := b.active[ent.id]
		b.mu.Unlock()
		if !alive {
			continue
		}
		b.dispatch(ent.fn, e)
	}
}

func (b *EventBus) dispatch(h Handler, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "kind", e.Kind(), "panic", r)
			b.mu.Lock()
			hook := b.panicHook
			b.mu.Unlock()
			if hook != nil {
				hook(e.Kind(), r)
			}
		}
	}()
	h(e)
}
