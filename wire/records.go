// Package wire defines the JSON record shapes exchanged with the chat
// backend and the normalization into domain values.
package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chat-session/domain"
)

// Timestamp accepts both representations seen on the wire: an ISO-8601
// string or a numeric epoch in milliseconds. It always marshals back to
// ISO-8601.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", raw, err)
		}
		t.Time = parsed
		return nil
	}
	millis, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", s, err)
	}
	t.Time = time.UnixMilli(int64(millis)).UTC()
	return nil
}

// Message is the wire-format message record.
type Message struct {
	ID         string    `json:"id" validate:"required"`
	Text       string    `json:"text"`
	SenderRole string    `json:"senderRole" validate:"omitempty,oneof=customer worker"`
	AuthorID   string    `json:"authorUserId" validate:"required"`
	RoomID     string    `json:"roomId" validate:"required"`
	Timestamp  Timestamp `json:"timestamp"`
}

// Room is the wire-format room snapshot record.
type Room struct {
	ID           string    `json:"id" validate:"required"`
	Name         string    `json:"name"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
	CreatedAt    Timestamp `json:"createdAt"`
}

// FromDomain converts a locally authored message into its wire shape.
func FromDomain(msg domain.Message) Message {
	return Message{
		ID:         msg.ID,
		Text:       msg.Text,
		SenderRole: string(msg.Sender),
		AuthorID:   msg.AuthorID,
		RoomID:     msg.RoomID,
		Timestamp:  Timestamp{Time: msg.SentAt},
	}
}
