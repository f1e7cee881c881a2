// Package session owns the connection state machine and is the single
// public entry point for consumers: connect, join and leave rooms, send
// messages, query snapshots, and subscribe to change events.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chat-session/bus"
	"chat-session/domain"
	"chat-session/domain/event"
	"chat-session/errors"
	"chat-session/moderation"
	"chat-session/observability"
	"chat-session/search"
	"chat-session/store"
	"chat-session/transport"
	"chat-session/wire"

	"github.com/google/uuid"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Manager orchestrates the transport, the room store and the event bus.
//
// All state transitions are serialized behind a single mutex: the order
// deliveries acquire it is the order messages are appended, which keeps
// per-room message order equal to processing order regardless of wire
// timestamps. Disconnecting retains all room state so a reconnect
// resumes without reloading history.
type Manager struct {
	log       *slog.Logger
	transport transport.Transport
	store     *store.RoomStore
	bus       *bus.EventBus
	stats     *observability.Stats
	moderator *moderation.Moderator
	index     *search.Index
	now       func() time.Time
	newID     func() string

	defaultRoomID   string
	defaultRoomName string

	mu          sync.Mutex
	state       State
	userID      string
	role        domain.Role
	currentRoom string
	norm        wire.Normalizer
	cancelRecv  context.CancelFunc
}

type Option func(*Manager)

// WithModerator masks inbound message text before it is stored.
func WithModerator(m *moderation.Moderator) Option {
	return func(mgr *Manager) { mgr.moderator = m }
}

// WithIndex enables SearchMessages over accepted messages.
func WithIndex(idx *search.Index) Option {
	return func(mgr *Manager) { mgr.index = idx }
}

// WithDefaultRoom seeds a room on every successful handshake so a fresh
// session has somewhere to land.
func WithDefaultRoom(id, name string) Option {
	return func(mgr *Manager) {
		mgr.defaultRoomID = id
		mgr.defaultRoomName = name
	}
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) { mgr.now = now }
}

// WithIDGenerator replaces the message ID source.
func WithIDGenerator(newID func() string) Option {
	return func(mgr *Manager) { mgr.newID = newID }
}

func NewManager(log *slog.Logger, tr transport.Transport, opts ...Option) *Manager {
	m := &Manager{
		log:       log,
		transport: tr,
		store:     store.NewRoomStore(),
		bus:       bus.New(log),
		stats:     observability.NewStats(log),
		now:       time.Now,
		newID:     uuid.NewString,
		state:     StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.bus.OnHandlerPanic(func(event.Kind, any) { m.stats.IncrHandlerPanic() })
	return m
}

// Bus exposes the subscription surface.
func (m *Manager) Bus() *bus.EventBus { return m.bus }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts the handshake. The transition to Connected happens
// when the transport acknowledges, at which point a connected event is
// published with a snapshot of everything already known.
func (m *Manager) Connect(ctx context.Context, userID string, role domain.Role) error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return errors.ErrAlreadyConnected
	}
	m.state = StateConnecting
	m.userID = userID
	m.role = role
	m.norm = wire.NewNormalizer(userID)
	m.mu.Unlock()

	m.log.Info("connecting", "user", userID, "role", role)

	if err := m.transport.Connect(ctx, transport.Hello{UserID: userID, Role: role}); err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		m.stats.IncrTransportError()
		m.bus.Publish(event.TransportError{Err: err})
		return fmt.Errorf("transport connect: %w", err)
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancelRecv = cancel
	m.mu.Unlock()
	go m.receive(recvCtx)
	return nil
}

// receive is the single consumer of inbound transport traffic.
func (m *Manager) receive(ctx context.Context) {
	inbound := m.transport.Inbound()
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("receive loop stopped")
			return
		case env, ok := <-inbound:
			if !ok {
				m.onTransportError(fmt.Errorf("%w: inbound closed", errors.ErrTransportClosed))
				return
			}
			m.handle(env)
		}
	}
}

func (m *Manager) handle(env transport.Envelope) {
	switch env.Kind {
	case transport.KindAck:
		m.onAck()
	case transport.KindMessage:
		m.deliver(*env.Message)
	case transport.KindRoom:
		m.mergeRoom(*env.Room)
	case transport.KindError:
		m.onTransportError(env.Err)
	default:
		m.log.Warn("unknown envelope kind", "kind", env.Kind)
	}
}

func (m *Manager) onAck() {
	m.mu.Lock()
	if m.state != StateConnecting {
		m.mu.Unlock()
		m.log.Debug("handshake ack ignored", "state", m.state)
		return
	}
	m.state = StateConnected
	if m.defaultRoomID != "" {
		m.store.Upsert(m.defaultRoomID, m.defaultRoomName, m.now())
	}
	userID, role := m.userID, m.role
	m.mu.Unlock()

	m.log.Info("connected", "user", userID, "role", role)
	m.bus.Publish(event.Connected{UserID: userID, Role: role, Rooms: m.store.Rooms()})
}

// deliver runs every inbound message, real or simulated, through the
// one normalization/append/publish path.
func (m *Manager) deliver(rec wire.Message) {
	m.mu.Lock()
	norm := m.norm
	m.mu.Unlock()

	msg, err := norm.Message(rec)
	if err != nil {
		m.stats.IncrMalformed()
		m.log.Warn("rejected inbound message", "error", err)
		m.bus.Publish(event.TransportError{Err: err})
		return
	}

	if m.moderator != nil {
		if masked, changed := m.moderator.Censor(msg.Text); changed {
			msg.Text = masked
			m.stats.IncrModerated()
		}
	}

	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		m.stats.IncrLateDiscard("session disconnected", msg.ID, msg.RoomID)
		return
	}
	appended, err := m.store.Append(msg)
	if err != nil {
		m.mu.Unlock()
		m.stats.IncrLateDiscard("room unknown", msg.ID, msg.RoomID)
		return
	}
	current := m.currentRoom == msg.RoomID
	m.mu.Unlock()

	if appended && m.index != nil {
		if err := m.index.Add(msg); err != nil {
			m.log.Warn("indexing failed", "id", msg.ID, "error", err)
		}
	}
	m.stats.IncrReceived()

	// The live message stream is filtered to the current room; other
	// rooms still accumulate history and surface as room updates.
	if current {
		m.bus.Publish(event.MessageReceived{Message: msg})
		return
	}
	if room, ok := m.store.Room(msg.RoomID); ok {
		m.bus.Publish(event.RoomUpdated{Room: room})
	}
}

func (m *Manager) mergeRoom(rec wire.Room) {
	m.mu.Lock()
	norm := m.norm
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected {
		m.stats.IncrLateDiscard("session disconnected", rec.ID, rec.ID)
		return
	}

	room, err := norm.Room(rec)
	if err != nil {
		m.stats.IncrMalformed()
		m.log.Warn("rejected room snapshot", "room", rec.ID, "error", err)
		m.bus.Publish(event.TransportError{Err: err})
		return
	}

	snapshot := m.store.Merge(room)
	m.bus.Publish(event.RoomUpdated{Room: snapshot})
}

func (m *Manager) onTransportError(err error) {
	m.stats.IncrTransportError()
	m.log.Warn("transport failure", "error", err)
	m.bus.Publish(event.TransportError{Err: err})
	m.disconnect("transport failure")
}

// Disconnect tears the connection down. Room and message state is
// retained so a later Connect resumes with full history.
func (m *Manager) Disconnect() {
	m.disconnect("client disconnect")
}

func (m *Manager) disconnect(reason string) {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	cancel := m.cancelRecv
	m.cancelRecv = nil
	userID := m.userID
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := m.transport.Close(); err != nil {
		m.log.Warn("closing transport", "error", err)
	}
	m.log.Info("disconnected", "user", userID, "reason", reason)
	m.bus.Publish(event.Disconnected{UserID: userID, Reason: reason})
}

// JoinRoom creates the room when unknown, adds the local user to its
// participants (idempotent), and makes it the current room for the live
// message stream.
func (m *Manager) JoinRoom(roomID string) error {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return errors.ErrNotConnected
	}
	m.store.Upsert(roomID, roomID, m.now())
	room, err := m.store.AddParticipant(roomID, m.userID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.currentRoom = roomID
	userID := m.userID
	m.mu.Unlock()

	if err := m.transport.Join(roomID); err != nil {
		// The local join already took effect; the wire is best effort.
		m.log.Warn("join not sent to backend", "room", roomID, "error", err)
	}

	m.bus.Publish(event.JoinedRoom{RoomID: roomID, UserID: userID})
	m.bus.Publish(event.RoomUpdated{Room: room})
	return nil
}

// LeaveRoom removes the local user from the participants. Leaving a
// room twice, or one never joined, is a no-op.
func (m *Manager) LeaveRoom(roomID string) error {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return errors.ErrNotConnected
	}
	room, err := m.store.RemoveParticipant(roomID, m.userID)
	if err != nil {
		m.mu.Unlock()
		return nil
	}
	if m.currentRoom == roomID {
		m.currentRoom = ""
	}
	userID := m.userID
	m.mu.Unlock()

	if err := m.transport.Leave(roomID); err != nil {
		m.log.Warn("leave not sent to backend", "room", roomID, "error", err)
	}

	m.bus.Publish(event.LeftRoom{RoomID: roomID, UserID: userID})
	m.bus.Publish(event.RoomUpdated{Room: room})
	return nil
}

// SendMessage validates, appends the locally authored message, then
// hands it to the transport. The message-received event for it fires
// when the delivery (echo or backend broadcast) comes back in.
func (m *Manager) SendMessage(ctx context.Context, roomID, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return errors.ErrEmptyMessage
	}

	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return errors.ErrNotConnected
	}
	if _, ok := m.store.Room(roomID); !ok {
		m.mu.Unlock()
		return errors.ErrUnknownRoom
	}
	msg := domain.Message{
		ID:       m.newID(),
		Text:     trimmed,
		Sender:   m.role,
		AuthorID: m.userID,
		RoomID:   roomID,
		SentAt:   m.now(),
		Own:      true,
	}
	if _, err := m.store.Append(msg); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	if m.index != nil {
		if err := m.index.Add(msg); err != nil {
			m.log.Warn("indexing failed", "id", msg.ID, "error", err)
		}
	}

	if err := m.transport.Send(ctx, wire.FromDomain(msg)); err != nil {
		return fmt.Errorf("transport send: %w", err)
	}
	m.stats.IncrSent()
	return nil
}

// Rooms returns snapshots of every known room.
func (m *Manager) Rooms() []domain.Room {
	return m.store.Rooms()
}

// Room returns a snapshot of one room.
func (m *Manager) Room(roomID string) (domain.Room, bool) {
	return m.store.Room(roomID)
}

// SearchMessages queries the session's message history.
func (m *Manager) SearchMessages(ctx context.Context, query string, limit int) ([]domain.Message, error) {
	if m.index == nil {
		return nil, errors.ErrSearchUnavailable
	}
	hits, err := m.index.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0, len(hits))
	for _, hit := range hits {
		if msg, ok := m.store.FindMessage(hit.RoomID, hit.MessageID); ok {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// Stats returns the session counters.
func (m *Manager) Stats() observability.Snapshot {
	return m.stats.Snapshot()
}
