package domain

import (
	"slices"
	"time"
)

// Room is a named conversation context holding participants and an
// ordered, append-only message history. Values handed out by the store
// are snapshots; mutating a snapshot never affects the session state.
type Room struct {
	ID           string
	Name         string
	Participants []string
	Messages     []Message
	CreatedAt    time.Time
}

// Clone returns a deep copy of the room. Message values are immutable,
// so copying the backing slices is enough.
func (r Room) Clone() Room {
	c := r
	c.Participants = slices.Clone(r.Participants)
	c.Messages = slices.Clone(r.Messages)
	return c
}

func (r Room) HasParticipant(userID string) bool {
	return slices.Contains(r.Participants, userID)
}
