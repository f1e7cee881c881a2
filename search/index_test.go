package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-session/domain"

	"github.com/stretchr/testify/require"
)

func TestIndex_AddAndSearch(t *testing.T) {
	req := require.New(t)
	idx, err := NewIndex(slog.Default())
	req.NoError(err)
	defer func() { _ = idx.Close() }()

	messages := []domain.Message{
		{ID: "m-1", Text: "my invoice is wrong", RoomID: "room-1", AuthorID: "cust-1", SentAt: time.Now()},
		{ID: "m-2", Text: "let me check that invoice", RoomID: "room-1", AuthorID: "worker-1", SentAt: time.Now()},
		{ID: "m-3", Text: "completely unrelated chatter", RoomID: "room-2", AuthorID: "cust-2", SentAt: time.Now()},
	}
	for _, msg := range messages {
		req.NoError(idx.Add(msg))
	}

	hits, err := idx.Search(context.Background(), "invoice", 10)

	req.NoError(err)
	req.Len(hits, 2)
	for _, hit := range hits {
		req.Equal("room-1", hit.RoomID)
		req.Contains([]string{"m-1", "m-2"}, hit.MessageID)
	}
}

func TestIndex_Search_NoMatches(t *testing.T) {
	req := require.New(t)
	idx, err := NewIndex(slog.Default())
	req.NoError(err)
	defer func() { _ = idx.Close() }()

	req.NoError(idx.Add(domain.Message{ID: "m-1", Text: "hello there", RoomID: "room-1"}))

	hits, err := idx.Search(context.Background(), "refund", 10)

	req.NoError(err)
	req.Empty(hits)
}

func TestIndex_Add_SameIDTwice(t *testing.T) {
	req := require.New(t)
	idx, err := NewIndex(slog.Default())
	req.NoError(err)
	defer func() { _ = idx.Close() }()

	msg := domain.Message{ID: "m-1", Text: "hello invoice", RoomID: "room-1"}
	req.NoError(idx.Add(msg))
	req.NoError(idx.Add(msg))

	hits, err := idx.Search(context.Background(), "invoice", 10)

	req.NoError(err)
	req.Len(hits, 1)
}
