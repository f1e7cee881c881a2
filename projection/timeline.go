// Package projection builds presentation-side views from session
// events. It only consumes the event surface and store snapshots; it
// never mutates session state.
package projection

import (
	"slices"
	"sync"

	"chat-session/bus"
	"chat-session/domain"
	"chat-session/domain/event"

	"github.com/abadojack/whatlanggo"
)

// Timeline is the live message stream for the room the local user is
// currently in, the view a chat window renders. It also keeps rough
// per-language counters over everything it has seen.
type Timeline struct {
	mu       sync.Mutex
	bus      *bus.EventBus
	subs     []bus.Subscription
	current  string
	messages []domain.Message
	langs    map[string]int
}

func NewTimeline(b *bus.EventBus) *Timeline {
	t := &Timeline{bus: b, langs: make(map[string]int)}
	t.subs = append(t.subs,
		b.Subscribe(event.KindJoinedRoom, t.onEvent),
		b.Subscribe(event.KindLeftRoom, t.onEvent),
		b.Subscribe(event.KindMessageReceived, t.onEvent),
		b.Subscribe(event.KindRoomUpdated, t.onEvent),
	)
	return t
}

func (t *Timeline) onEvent(e event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch evt := e.(type) {
	case event.JoinedRoom:
		t.current = evt.RoomID
		t.messages = nil
	case event.LeftRoom:
		if t.current == evt.RoomID {
			t.current = ""
			t.messages = nil
		}
	case event.MessageReceived:
		if evt.Message.RoomID != t.current {
			return
		}
		t.messages = append(t.messages, evt.Message)
		t.countLanguage(evt.Message.Text)
	case event.RoomUpdated:
		// A full snapshot of the current room replaces the view.
		if evt.Room.ID == t.current {
			t.messages = slices.Clone(evt.Room.Messages)
		}
	}
}

func (t *Timeline) countLanguage(text string) {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return
	}
	t.langs[info.Lang.Iso6391()]++
}

// CurrentRoom returns the room the timeline is following.
func (t *Timeline) CurrentRoom() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Messages returns a copy of the live stream.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.messages)
}

// Languages returns a copy of the per-language counters.
func (t *Timeline) Languages() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.langs))
	for lang, n := range t.langs {
		out[lang] = n
	}
	return out
}

// Close detaches the timeline from the bus.
func (t *Timeline) Close() {
	for _, sub := range t.subs {
		t.bus.Unsubscribe(sub)
	}
}
