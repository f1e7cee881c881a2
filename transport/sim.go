package transport

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"chat-session/domain"
	"chat-session/errors"
	"chat-session/wire"

	"github.com/google/uuid"
)

// simWorkerID is the fixed identity authoring synthetic replies.
const simWorkerID = "support-worker-1"

// cannedReplies is the corpus synthetic worker replies are drawn from.
var cannedReplies = []string{
	"Thanks for reaching out! How can I help you today?",
	"I understand your concern. Let me look into that for you.",
	"Could you give me a few more details about the issue?",
	"That should be resolved now. Is there anything else I can do?",
	"I've escalated this to our team, you'll hear back shortly.",
}

// Scheduler runs fn after the given delay and returns a cancel func.
// Injectable so tests can fire deliveries deterministically.
type Scheduler func(d time.Duration, fn func()) (cancel func())

func defaultScheduler(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Sim is a transport with no remote peer. Every sent message is echoed
// back after a short delay; when the local participant is a customer, a
// synthetic worker reply follows after a longer delay. Both deliveries
// re-enter through the same inbound channel a real backend would use.
//
// A delivery whose timer fires after Close is dropped, never delivered.
type Sim struct {
	log        *slog.Logger
	echoDelay  time.Duration
	replyDelay time.Duration
	schedule   Scheduler
	pick       func(n int) int
	now        func() time.Time

	mu      sync.Mutex
	closed  bool
	hello   Hello
	inbound chan Envelope
}

type SimOption func(*Sim)

// WithScheduler replaces the timer-based scheduler.
func WithScheduler(s Scheduler) SimOption {
	return func(t *Sim) { t.schedule = s }
}

// WithReplyPicker replaces the random canned-reply selection.
func WithReplyPicker(pick func(n int) int) SimOption {
	return func(t *Sim) { t.pick = pick }
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) SimOption {
	return func(t *Sim) { t.now = now }
}

func NewSim(log *slog.Logger, echoDelay, replyDelay time.Duration, opts ...SimOption) *Sim {
	s := &Sim{
		log:        log,
		echoDelay:  echoDelay,
		replyDelay: replyDelay,
		schedule:   defaultScheduler,
		pick:       rand.Intn,
		now:        time.Now,
		closed:     true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sim) Connect(_ context.Context, hello Hello) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hello = hello
	s.closed = false
	s.inbound = make(chan Envelope, 64)
	// Handshake ack is immediate for the simulated peer.
	s.inbound <- Envelope{Kind: KindAck}
	return nil
}

func (s *Sim) Send(_ context.Context, msg wire.Message) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.ErrTransportClosed
	}
	role := s.hello.Role
	s.mu.Unlock()

	s.schedule(s.echoDelay, func() {
		s.deliver(msg)
	})

	if role != domain.RoleCustomer {
		return nil
	}
	reply := cannedReplies[s.pick(len(cannedReplies))]
	s.schedule(s.replyDelay, func() {
		s.deliver(wire.Message{
			ID:         uuid.NewString(),
			Text:       reply,
			SenderRole: string(domain.RoleWorker),
			AuthorID:   simWorkerID,
			RoomID:     msg.RoomID,
			Timestamp:  wire.Timestamp{Time: s.now()},
		})
	})
	return nil
}

func (s *Sim) deliver(msg wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.log.Debug("dropping simulated delivery after close",
			"id", msg.ID, "room", msg.RoomID)
		return
	}
	select {
	case s.inbound <- Envelope{Kind: KindMessage, Message: &msg}:
	default:
		s.log.Warn("inbound buffer full, dropping simulated delivery",
			"id", msg.ID, "room", msg.RoomID)
	}
}

// Join is a no-op: the simulated peer has no room membership of its own.
func (s *Sim) Join(roomID string) error {
	s.log.Debug("simulated join", "room", roomID)
	return nil
}

func (s *Sim) Leave(roomID string) error {
	s.log.Debug("simulated leave", "room", roomID)
	return nil
}

func (s *Sim) Inbound() <-chan Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inbound
}

// Close stops delivery. Already scheduled timers are not retracted;
// they fire and are discarded in deliver.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
