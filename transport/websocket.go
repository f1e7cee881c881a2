package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"chat-session/errors"
	"chat-session/wire"

	"github.com/gorilla/websocket"
)

// frame is the JSON envelope the chat backend speaks: a named event
// plus its payload.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Websocket connects to a real chat backend over a single websocket.
// One goroutine reads frames into the inbound channel; writes are
// serialized with a mutex as gorilla allows a single concurrent writer.
type Websocket struct {
	log *slog.Logger
	url string

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	inbound chan Envelope
}

func NewWebsocket(log *slog.Logger, url string) *Websocket {
	return &Websocket{log: log, url: url, closed: true}
}

func (w *Websocket) Connect(ctx context.Context, hello Hello) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.url, err)
	}

	w.mu.Lock()
	w.conn = conn
	w.closed = false
	w.inbound = make(chan Envelope, 64)
	w.mu.Unlock()

	if err := w.write("join", map[string]string{
		"userId": hello.UserID,
		"role":   string(hello.Role),
	}); err != nil {
		_ = conn.Close()
		return err
	}

	go w.readLoop(conn)
	return nil
}

func (w *Websocket) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			w.mu.Lock()
			closed := w.closed
			inbound := w.inbound
			w.mu.Unlock()
			if !closed {
				inbound <- Envelope{Kind: KindError, Err: err}
			}
			return
		}
		w.route(f)
	}
}

func (w *Websocket) route(f frame) {
	env, ok := w.decode(f)
	if !ok {
		return
	}
	w.mu.Lock()
	closed := w.closed
	inbound := w.inbound
	w.mu.Unlock()
	if closed {
		w.log.Debug("dropping frame after close", "event", f.Event)
		return
	}
	select {
	case inbound <- env:
	default:
		w.log.Warn("inbound buffer full, dropping frame", "event", f.Event)
	}
}

func (w *Websocket) decode(f frame) (Envelope, bool) {
	switch f.Event {
	case "connected":
		return Envelope{Kind: KindAck}, true
	case "message-received":
		var msg wire.Message
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return Envelope{Kind: KindError, Err: fmt.Errorf("%w: %v", errors.ErrMalformedRecord, err)}, true
		}
		return Envelope{Kind: KindMessage, Message: &msg}, true
	case "room-joined", "room-updated":
		var room wire.Room
		if err := json.Unmarshal(f.Data, &room); err != nil {
			return Envelope{Kind: KindError, Err: fmt.Errorf("%w: %v", errors.ErrMalformedRecord, err)}, true
		}
		return Envelope{Kind: KindRoom, Room: &room}, true
	default:
		w.log.Debug("ignoring unknown frame", "event", f.Event)
		return Envelope{}, false
	}
}

func (w *Websocket) Send(_ context.Context, msg wire.Message) error {
	return w.write("send-message", msg)
}

func (w *Websocket) Join(roomID string) error {
	return w.write("join-room", roomID)
}

func (w *Websocket) Leave(roomID string) error {
	return w.write("leave-room", roomID)
}

func (w *Websocket) write(eventName string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventName, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.conn == nil {
		return errors.ErrTransportClosed
	}
	if err := w.conn.WriteJSON(frame{Event: eventName, Data: data}); err != nil {
		return fmt.Errorf("write %s: %w", eventName, err)
	}
	return nil
}

func (w *Websocket) Inbound() <-chan Envelope {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inbound
}

func (w *Websocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.conn == nil {
		return nil
	}
	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return w.conn.Close()
}
