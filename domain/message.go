// Package domain contains core concepts of the chat session.
// This file defines Message and related rules.
// Messages are immutable once created and owned by their Room.
package domain

import "time"

// Message represents a single immutable chat utterance.
//
// Own is computed exactly once, when the message is created or
// normalized, by comparing AuthorID against the local user of the
// session. It is never recomputed afterwards.
type Message struct {
	ID       string
	Text     string
	Sender   Role
	AuthorID string
	RoomID   string
	SentAt   time.Time
	Own      bool
}
