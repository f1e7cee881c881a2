// Package event defines the closed set of session events published to
// subscribers. Each kind carries a statically known payload type.
package event

import "chat-session/domain"

type Kind string

const (
	KindConnected       Kind = "connected"
	KindMessageReceived Kind = "message-received"
	KindRoomUpdated     Kind = "room-updated"
	KindJoinedRoom      Kind = "joined-room"
	KindLeftRoom        Kind = "left-room"
	KindDisconnected    Kind = "disconnected"
	KindTransportError  Kind = "transport-error"
)

type Event interface {
	Kind() Kind
}

// Connected is published once the transport handshake is acknowledged.
// Rooms is a snapshot of everything known at that moment.
type Connected struct {
	UserID string
	Role   domain.Role
	Rooms  []domain.Room
}

func (Connected) Kind() Kind { return KindConnected }

type MessageReceived struct {
	Message domain.Message
}

func (MessageReceived) Kind() Kind { return KindMessageReceived }

// RoomUpdated carries a full snapshot of the room that changed.
type RoomUpdated struct {
	Room domain.Room
}

func (RoomUpdated) Kind() Kind { return KindRoomUpdated }

type JoinedRoom struct {
	RoomID string
	UserID string
}

func (JoinedRoom) Kind() Kind { return KindJoinedRoom }

type LeftRoom struct {
	RoomID string
	UserID string
}

func (LeftRoom) Kind() Kind { return KindLeftRoom }

type Disconnected struct {
	UserID string
	Reason string
}

func (Disconnected) Kind() Kind { return KindDisconnected }

// TransportError surfaces connect failures and malformed inbound
// payloads. It is reported, never returned into the dispatch path.
type TransportError struct {
	Err error
}

func (TransportError) Kind() Kind { return KindTransportError }
