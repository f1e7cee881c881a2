package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-session/domain"
	"chat-session/domain/event"
	"chat-session/errors"
	"chat-session/transport"
	"chat-session/wire"

	"github.com/stretchr/testify/require"
)

// fakeTransport gives tests full control over inbound traffic.
type fakeTransport struct {
	mu           sync.Mutex
	inbound      chan transport.Envelope
	sent         []wire.Message
	joined       []string
	left         []string
	closed       bool
	connectErr   error
	ackOnConnect bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{ackOnConnect: true}
}

func (f *fakeTransport) Connect(_ context.Context, _ transport.Hello) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = false
	f.inbound = make(chan transport.Envelope, 16)
	if f.ackOnConnect {
		f.inbound <- transport.Envelope{Kind: transport.KindAck}
	}
	return nil
}

func (f *fakeTransport) Send(_ context.Context, msg wire.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Join(roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, roomID)
	return nil
}

func (f *fakeTransport) Leave(roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, roomID)
	return nil
}

func (f *fakeTransport) Inbound() <-chan transport.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inbound
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) push(env transport.Envelope) {
	f.mu.Lock()
	inbound := f.inbound
	f.mu.Unlock()
	inbound <- env
}

func (f *fakeTransport) sentMessages() []wire.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.Message(nil), f.sent...)
}

// record subscribes to every kind and funnels events into one channel.
func record(m *Manager) <-chan event.Event {
	ch := make(chan event.Event, 64)
	kinds := []event.Kind{
		event.KindConnected, event.KindMessageReceived, event.KindRoomUpdated,
		event.KindJoinedRoom, event.KindLeftRoom, event.KindDisconnected,
		event.KindTransportError,
	}
	for _, kind := range kinds {
		m.Bus().Subscribe(kind, func(e event.Event) { ch <- e })
	}
	return ch
}

func waitFor[T event.Event](t *testing.T, ch <-chan event.Event) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if typed, ok := e.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func requireQuiet(t *testing.T, ch <-chan event.Event) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %T: %+v", e, e)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestManager(tr transport.Transport, opts ...Option) *Manager {
	base := []Option{
		WithClock(func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }),
	}
	return NewManager(slog.Default(), tr, append(base, opts...)...)
}

func connect(t *testing.T, m *Manager, events <-chan event.Event) {
	t.Helper()
	require.NoError(t, m.Connect(context.Background(), "cust-1", domain.RoleCustomer))
	waitFor[event.Connected](t, events)
}

func TestManager_Connect_PublishesConnected(t *testing.T) {
	req := require.New(t)
	m := newTestManager(newFakeTransport())
	events := record(m)

	// Scenario A
	req.NoError(m.Connect(context.Background(), "cust-1", domain.RoleCustomer))

	evt := waitFor[event.Connected](t, events)
	req.Equal("cust-1", evt.UserID)
	req.Equal(domain.RoleCustomer, evt.Role)
	req.Equal(StateConnected, m.State())
}

func TestManager_Connect_SeedsDefaultRoom(t *testing.T) {
	req := require.New(t)
	m := newTestManager(newFakeTransport(),
		WithDefaultRoom("room-1", "Customer Support - Live Chat"))
	events := record(m)

	connect(t, m, events)

	room, ok := m.Room("room-1")
	req.True(ok)
	req.Equal("Customer Support - Live Chat", room.Name)
	req.Empty(room.Messages)
}

func TestManager_Connect_Twice(t *testing.T) {
	m := newTestManager(newFakeTransport())
	events := record(m)
	connect(t, m, events)

	err := m.Connect(context.Background(), "cust-1", domain.RoleCustomer)

	require.ErrorIs(t, err, errors.ErrAlreadyConnected)
}

func TestManager_Connect_TransportFailure(t *testing.T) {
	req := require.New(t)
	tr := newFakeTransport()
	tr.connectErr = fmt.Errorf("connection refused")
	m := newTestManager(tr)
	events := record(m)

	err := m.Connect(context.Background(), "cust-1", domain.RoleCustomer)

	req.Error(err)
	req.Equal(StateDisconnected, m.State())
	waitFor[event.TransportError](t, events)
	req.Equal(uint64(1), m.Stats().TransportErrors)
}

func TestManager_JoinRoom_CreatesAndPublishes(t *testing.T) {
	req := require.New(t)
	tr := newFakeTransport()
	m := newTestManager(tr)
	events := record(m)
	connect(t, m, events)

	// Scenario B: join on an empty store
	req.NoError(m.JoinRoom("room-1"))

	joined := waitFor[event.JoinedRoom](t, events)
	req.Equal("room-1", joined.RoomID)
	req.Equal("cust-1", joined.UserID)

	updated := waitFor[event.RoomUpdated](t, events)
	req.Equal([]string{"cust-1"}, updated.Room.Participants)
	req.Empty(updated.Room.Messages)

	req.Equal([]string{"room-1"}, tr.joined)
}

func TestManager_JoinRoom_Idempotent(t *testing.T) {
	req := require.New(t)
	m := newTestManager(newFakeTransport())
	events := record(m)
	connect(t, m, events)

	for i := 0; i < 3; i++ {
		req.NoError(m.JoinRoom("room-1"))
	}

	room, _ := m.Room("room-1")
	req.Equal([]string{"cust-1"}, room.Participants)
}

func TestManager_JoinRoom_RequiresConnection(t *testing.T) {
	m := newTestManager(newFakeTransport())

	require.ErrorIs(t, m.JoinRoom("room-1"), errors.ErrNotConnected)
}

func TestManager_LeaveRoom_Idempotent(t *testing.T) {
	req := require.New(t)
	m := newTestManager(newFakeTransport())
	events := record(m)
	connect(t, m, events)
	req.NoError(m.JoinRoom("room-1"))

	req.NoError(m.LeaveRoom("room-1"))
	after1, _ := m.Room("room-1")
	req.NoError(m.LeaveRoom("room-1"))
	after2, _ := m.Room("room-1")

	req.Empty(after1.Participants)
	req.Equal(after1.Participants, after2.Participants)
}

func TestManager_LeaveRoom_UnknownRoomIsNoop(t *testing.T) {
	m := newTestManager(newFakeTransport())
	events := record(m)
	connect(t, m, events)

	require.NoError(t, m.LeaveRoom("nowhere"))
}

func TestManager_SendMessage_BlankIsRejectedWithoutMutation(t *testing.T) {
	req := require.New(t)
	m := newTestManager(newFakeTransport())
	events := record(m)
	connect(t, m, events)
	req.NoError(m.JoinRoom("room-1"))
	drainJoin(t, events)

	err := m.SendMessage(context.Background(), "room-1", "   \t  ")

	req.ErrorIs(err, errors.ErrEmptyMessage)
	room, _ := m.Room("room-1")
	req.Empty(room.Messages)
	requireQuiet(t, events)
}

func TestManager_SendMessage_UnknownRoom(t *testing.T) {
	m := newTestManager(newFakeTransport())
	events := record(m)
	connect(t, m, events)

	err := m.SendMessage(context.Background(), "nowhere", "hello")

	require.ErrorIs(t, err, errors.ErrUnknownRoom)
}

func TestManager_SendMessage_RequiresConnection(t *testing.T) {
	m := newTestManager(newFakeTransport())

	err := m.SendMessage(context.Background(), "room-1", "hello")

	require.ErrorIs(t, err, errors.ErrNotConnected)
}

func TestManager_SendMessage_AppendsOwnAndForwards(t *testing.T) {
	req := require.New(t)
	tr := newFakeTransport()
	m := newTestManager(tr, WithIDGenerator(func() string { return "m-1" }))
	events := record(m)
	connect(t, m, events)
	req.NoError(m.JoinRoom("room-1"))
	drainJoin(t, events)

	req.NoError(m.SendMessage(context.Background(), "room-1", "  Hello  "))

	// Appended immediately, trimmed, stamped as own
	room, _ := m.Room("room-1")
	req.Len(room.Messages, 1)
	msg := room.Messages[0]
	req.Equal("Hello", msg.Text)
	req.True(msg.Own)
	req.Equal("cust-1", msg.AuthorID)
	req.Equal(domain.RoleCustomer, msg.Sender)

	// Forwarded to the transport, no message-received yet
	sent := tr.sentMessages()
	req.Len(sent, 1)
	req.Equal("m-1", sent[0].ID)
	requireQuiet(t, events)
}

func TestManager_EchoDelivery_PublishesWithoutDuplicating(t *testing.T) {
	req := require.New(t)
	tr := newFakeTransport()
	m := newTestManager(tr, WithIDGenerator(func() string { return "m-1" }))
	events := record(m)
	connect(t, m, events)
	req.NoError(m.JoinRoom("room-1"))
	drainJoin(t, events)
	req.NoError(m.SendMessage(context.Background(), "room-1", "Hello"))

	// The backend echoes the same record back
	tr.push(transport.Envelope{Kind: transport.KindMessage, Message: &wire.Message{
		ID: "m-1", Text: "Hello", SenderRole: "customer",
		AuthorID: "cust-1", RoomID: "room-1",
	}})

	evt := waitFor[event.MessageReceived](t, events)
	req.True(evt.Message.Own)
	req.Equal("m-1", evt.Message.ID)

	room, _ := m.Room("room-1")
	req.Len(room.Messages, 1)
}

func TestManager_InboundForOtherRoom_AppendedButNotStreamed(t *testing.T) {
	req := require.New(t)
	tr := newFakeTransport()
	m := newTestManager(tr)
	events := record(m)
	connect(t, m, events)
	req.NoError(m.JoinRoom("room-1"))
	req.NoError(m.JoinRoom("room-2"))
	req.NoError(m.JoinRoom("room-1")) // current room is room-1 again
	drainJoin(t, events)
	drainJoin(t, events)
	drainJoin(t, events)

	tr.push(transport.Envelope{Kind: transport.KindMessage, Message: &wire.Message{
		ID: "m-7", Text: "elsewhere", SenderRole: "worker",
		AuthorID: "worker-1", RoomID: "room-2",
	}})

	// Surfaced as a room update, not on the live stream
	updated := waitFor[event.RoomUpdated](t, events)
	req.Equal("room-2", updated.Room.ID)
	req.Len(updated.Room.Messages, 1)
	req.False(updated.Room.Messages[0].Own)
	requireQuiet(t, events)
}

func TestManager_InboundUnknownRoom_Discarded(t *testing.T) {
	req := require.New(t)
	tr := newFakeTransport()
	m := newTestManager(tr)
	events := record(m)
	connect(t, m, events)

	tr.push(transport.Envelope{Kind: transport.KindMessage, Message: &wire.Message{
		ID: "m-1", Text: "lost", AuthorID: "worker-1", RoomID: "ghost-room",
	}})

	requireQuiet(t, events)
	req.Eventually(func() bool { return m.Stats().LateDiscards == 1 },
		time.Second, 10*time.Millisecond)
}

func TestManager_MalformedInbound_SurfacedAsTransportError(t *testing.T) {
	req := require.New(t)
	tr := newFakeTransport()
	m := newTestManager(tr)
	events := record(m)
	connect(t, m, events)

	tr.push(transport.Envelope{Kind: transport.KindMessage, Message: &wire.Message{
		Text: "no identifiers at all",
	}})

	evt := waitFor[event.TransportError](t, events)
	req.ErrorIs(evt.Err, errors.ErrMalformedRecord)
	req.Eventually(func() bool { return m.Stats().MalformedRecords == 1 },
		time.Second, 10*time.Millisecond)
}

func TestManager_RoomSnapshot_Merged(t *testing.T) {
	req := require.New(t)
	tr := newFakeTransport()
	m := newTestManager(tr)
	events := record(m)
	connect(t, m, events)

	tr.push(transport.Envelope{Kind: transport.KindRoom, Room: &wire.Room{
		ID:           "room-1",
		Name:         "Customer Support - Live Chat",
		Participants: []string{"cust-1", "worker-1"},
		Messages: []wire.Message{
			{ID: "m-1", Text: "history", AuthorID: "worker-1", RoomID: "room-1"},
		},
	}})

	updated := waitFor[event.RoomUpdated](t, events)
	req.Equal("Customer Support - Live Chat", updated.Room.Name)
	req.Len(updated.Room.Messages, 1)
	req.False(updated.Room.Messages[0].Own)
}

func TestManager_Disconnect_RetainsRoomState(t *testing.T) {
	req := require.New(t)
	tr := newFakeTransport()
	m := newTestManager(tr, WithIDGenerator(func() string { return "m-1" }))
	events := record(m)
	connect(t, m, events)
	req.NoError(m.JoinRoom("room-1"))
	req.NoError(m.SendMessage(context.Background(), "room-1", "Hello"))

	m.Disconnect()

	waitFor[event.Disconnected](t, events)
	req.Equal(StateDisconnected, m.State())
	room, ok := m.Room("room-1")
	req.True(ok)
	req.Len(room.Messages, 1)
	req.True(tr.closed)
}

func TestManager_Disconnect_ThenLateDelivery_Dropped(t *testing.T) {
	req := require.New(t)
	tr := newFakeTransport()
	m := newTestManager(tr)
	events := record(m)
	connect(t, m, events)
	req.NoError(m.JoinRoom("room-1"))
	drainJoin(t, events)

	// Keep a handle on the old inbound before disconnecting
	inbound := tr.inbound
	m.Disconnect()
	waitFor[event.Disconnected](t, events)

	// A delivery racing the shutdown must not mutate the store. The
	// receive loop may already be gone, so push without blocking.
	select {
	case inbound <- transport.Envelope{Kind: transport.KindMessage, Message: &wire.Message{
		ID: "m-9", Text: "too late", AuthorID: "worker-1", RoomID: "room-1",
	}}:
	default:
	}

	requireQuiet(t, events)
	room, _ := m.Room("room-1")
	req.Empty(room.Messages)
}

func TestManager_Reconnect_ResumesWithHistory(t *testing.T) {
	req := require.New(t)
	tr := newFakeTransport()
	m := newTestManager(tr, WithIDGenerator(func() string { return "m-1" }))
	events := record(m)
	connect(t, m, events)
	req.NoError(m.JoinRoom("room-1"))
	req.NoError(m.SendMessage(context.Background(), "room-1", "Hello"))
	m.Disconnect()
	waitFor[event.Disconnected](t, events)

	// Reconnect reuses the same store
	req.NoError(m.Connect(context.Background(), "cust-1", domain.RoleCustomer))
	evt := waitFor[event.Connected](t, events)

	req.Len(evt.Rooms, 1)
	req.Len(evt.Rooms[0].Messages, 1)
	req.Equal("Hello", evt.Rooms[0].Messages[0].Text)
}

func TestManager_TransportError_DisconnectsButKeepsState(t *testing.T) {
	req := require.New(t)
	tr := newFakeTransport()
	m := newTestManager(tr)
	events := record(m)
	connect(t, m, events)
	req.NoError(m.JoinRoom("room-1"))

	tr.push(transport.Envelope{Kind: transport.KindError, Err: fmt.Errorf("connection reset")})

	waitFor[event.TransportError](t, events)
	waitFor[event.Disconnected](t, events)
	req.Equal(StateDisconnected, m.State())
	_, ok := m.Room("room-1")
	req.True(ok)
}

func TestManager_SearchMessages_WithoutIndex(t *testing.T) {
	m := newTestManager(newFakeTransport())

	_, err := m.SearchMessages(context.Background(), "anything", 5)

	require.ErrorIs(t, err, errors.ErrSearchUnavailable)
}

// drainJoin consumes the joined-room + room-updated pair a JoinRoom
// call publishes.
func drainJoin(t *testing.T, events <-chan event.Event) {
	t.Helper()
	waitFor[event.JoinedRoom](t, events)
	waitFor[event.RoomUpdated](t, events)
}
