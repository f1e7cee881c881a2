package wire

import (
	"fmt"

	"chat-session/domain"
	"chat-session/errors"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Normalizer is the pure transform from wire records to canonical
// domain values. Own is computed here, against the local user the
// normalizer was built for, and never again afterwards.
type Normalizer struct {
	localUserID string
	validate    *validator.Validate
}

func NewNormalizer(localUserID string) Normalizer {
	return Normalizer{
		localUserID: localUserID,
		validate:    validator.New(),
	}
}

// Message validates and converts one wire message. Records missing id,
// roomId or authorUserId are rejected with ErrMalformedRecord.
func (n Normalizer) Message(rec Message) (domain.Message, error) {
	if n.validate == nil {
		return domain.Message{}, fmt.Errorf("normalizer not initialized")
	}
	if err := n.validate.Struct(rec); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrMalformedRecord, err)
	}
	return domain.Message{
		ID:       rec.ID,
		Text:     rec.Text,
		Sender:   domain.Role(rec.SenderRole),
		AuthorID: rec.AuthorID,
		RoomID:   rec.RoomID,
		SentAt:   rec.Timestamp.Time,
		Own:      rec.AuthorID == n.localUserID,
	}, nil
}

// Room converts a wire room snapshot, normalizing every embedded
// message. A single malformed message rejects the whole snapshot so a
// partial room never reaches the store.
func (n Normalizer) Room(rec Room) (domain.Room, error) {
	if err := n.validate.Struct(rec); err != nil {
		return domain.Room{}, fmt.Errorf("%w: %v", errors.ErrMalformedRecord, err)
	}

	messages := make([]domain.Message, 0, len(rec.Messages))
	for _, m := range rec.Messages {
		msg, err := n.Message(m)
		if err != nil {
			return domain.Room{}, err
		}
		messages = append(messages, msg)
	}

	return domain.Room{
		ID:           rec.ID,
		Name:         rec.Name,
		Participants: lo.Uniq(rec.Participants),
		Messages:     messages,
		CreatedAt:    rec.CreatedAt.Time,
	}, nil
}
