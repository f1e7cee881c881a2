// Package store holds the authoritative in-memory table of rooms for
// one session. All reads hand out deep-copy snapshots; mutation happens
// only through the session manager.
package store

import (
	"slices"
	"sync"
	"time"

	"chat-session/domain"
	"chat-session/errors"

	"github.com/samber/lo"
)

type set map[string]struct{}

// RoomStore maps roomId to its Room. Rooms are created at most once per
// identifier and live for the lifetime of the session; messages are
// append-only and deduplicated by message ID so the simulated echo can
// re-enter through the shared delivery path without growing the room.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
	seen  map[string]set
	order []string
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*domain.Room),
		seen:  make(map[string]set),
	}
}

// Upsert returns a snapshot of the room, creating it empty when the
// identifier is unknown. An existing room is reused untouched.
func (s *RoomStore) Upsert(id, name string, createdAt time.Time) domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(id, name, createdAt).Clone()
}

func (s *RoomStore) upsertLocked(id, name string, createdAt time.Time) *domain.Room {
	if room, ok := s.rooms[id]; ok {
		return room
	}
	room := &domain.Room{ID: id, Name: name, CreatedAt: createdAt}
	s.rooms[id] = room
	s.seen[id] = make(set)
	s.order = append(s.order, id)
	return room
}

// Merge applies a full room snapshot coming from the wire: the name and
// participant list are replaced, unseen messages are appended in order.
// Messages already accepted are never replaced or reordered.
func (s *RoomStore) Merge(snapshot domain.Room) domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.upsertLocked(snapshot.ID, snapshot.Name, snapshot.CreatedAt)
	if snapshot.Name != "" {
		room.Name = snapshot.Name
	}
	room.Participants = lo.Uniq(snapshot.Participants)

	for _, msg := range snapshot.Messages {
		s.appendLocked(room, msg)
	}
	return room.Clone()
}

// Append adds a message to its room. It reports false when a message
// with the same ID was already accepted, and ErrUnknownRoom when the
// target room does not exist.
func (s *RoomStore) Append(msg domain.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[msg.RoomID]
	if !ok {
		return false, errors.ErrUnknownRoom
	}
	return s.appendLocked(room, msg), nil
}

func (s *RoomStore) appendLocked(room *domain.Room, msg domain.Message) bool {
	ids := s.seen[room.ID]
	if _, dup := ids[msg.ID]; dup {
		return false
	}
	ids[msg.ID] = struct{}{}
	room.Messages = append(room.Messages, msg)
	return true
}

// AddParticipant is idempotent: joining a room twice leaves a single
// entry in the participant list.
func (s *RoomStore) AddParticipant(roomID, userID string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, errors.ErrUnknownRoom
	}
	if !slices.Contains(room.Participants, userID) {
		room.Participants = append(room.Participants, userID)
	}
	return room.Clone(), nil
}

func (s *RoomStore) RemoveParticipant(roomID, userID string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, errors.ErrUnknownRoom
	}
	room.Participants = slices.DeleteFunc(room.Participants, func(id string) bool {
		return id == userID
	})
	return room.Clone(), nil
}

// Room returns a snapshot of one room.
func (s *RoomStore) Room(id string) (domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return domain.Room{}, false
	}
	return room.Clone(), true
}

// Rooms returns snapshots of every known room, in creation order.
func (s *RoomStore) Rooms() []domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Map(s.order, func(id string, _ int) domain.Room {
		return s.rooms[id].Clone()
	})
}

// FindMessage resolves a message by room and message ID.
func (s *RoomStore) FindMessage(roomID, msgID string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Message{}, false
	}
	for _, msg := range room.Messages {
		if msg.ID == msgID {
			return msg, true
		}
	}
	return domain.Message{}, false
}
