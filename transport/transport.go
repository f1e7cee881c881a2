// Package transport abstracts the wire between the session and a chat
// backend: a real websocket connection or a simulated peer that
// manufactures deliveries.
package transport

import (
	"context"

	"chat-session/domain"
	"chat-session/wire"
)

type EnvelopeKind string

const (
	// KindAck acknowledges the connect handshake.
	KindAck EnvelopeKind = "ack"
	// KindMessage carries one inbound wire message.
	KindMessage EnvelopeKind = "message"
	// KindRoom carries a full room snapshot from the backend.
	KindRoom EnvelopeKind = "room"
	// KindError reports a transport-level failure; the connection is
	// considered gone after it.
	KindError EnvelopeKind = "error"
)

// Envelope is one unit of inbound traffic handed to the session.
type Envelope struct {
	Kind    EnvelopeKind
	Message *wire.Message
	Room    *wire.Room
	Err     error
}

// Hello identifies the local participant during the handshake.
type Hello struct {
	UserID string
	Role   domain.Role
}

// Transport moves events to and from a remote peer. Connect must be
// called before anything else; inbound traffic, including the handshake
// acknowledgement, arrives on the Inbound channel.
type Transport interface {
	Connect(ctx context.Context, hello Hello) error
	Send(ctx context.Context, msg wire.Message) error
	Join(roomID string) error
	Leave(roomID string) error
	Inbound() <-chan Envelope
	Close() error
}
