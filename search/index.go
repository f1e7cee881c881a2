// Package search maintains a session-scoped full-text index over
// accepted messages. The index lives purely in memory; nothing survives
// the process, matching the session-scoped lifetime of the room store.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"chat-session/domain"

	"github.com/blugelabs/bluge"
)

// Hit identifies one matching message.
type Hit struct {
	MessageID string
	RoomID    string
}

// Index wraps an in-memory bluge writer. Add and Search are safe for
// concurrent use.
type Index struct {
	mu     sync.Mutex
	log    *slog.Logger
	writer *bluge.Writer
}

func NewIndex(log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, fmt.Errorf("open in-memory index: %w", err)
	}
	return &Index{log: log, writer: writer}, nil
}

// Add indexes one accepted message. Messages are immutable, so an
// update for an already seen ID is a no-op rewrite of identical fields.
func (i *Index) Add(msg domain.Message) error {
	doc := bluge.NewDocument(msg.ID).
		AddField(bluge.NewTextField("text", msg.Text)).
		AddField(bluge.NewKeywordField("room", msg.RoomID).StoreValue()).
		AddField(bluge.NewKeywordField("author", msg.AuthorID).StoreValue())

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("index message %s: %w", msg.ID, err)
	}
	return nil
}

// Search returns up to limit hits matching the query text, best first.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	i.mu.Lock()
	reader, err := i.writer.Reader()
	i.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("index reader: %w", err)
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			i.log.Warn("closing index reader", "error", cerr)
		}
	}()

	q := bluge.NewMatchQuery(query).SetField("text")
	req := bluge.NewTopNSearch(limit, q)

	it, err := reader.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var hits []Hit
	for {
		match, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate matches: %w", err)
		}
		if match == nil {
			break
		}
		var hit Hit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "room":
				hit.RoomID = string(value)
			}
			return true
		})
		if err != nil {
			return nil, fmt.Errorf("read stored fields: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.writer.Close()
}
