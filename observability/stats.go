// Package observability tracks session-level counters so the consuming
// layer can show what the core silently absorbed (late deliveries,
// malformed records, handler panics).
package observability

import (
	"log/slog"
	"sync/atomic"
)

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	MessagesSent      uint64 `json:"messages_sent"`
	MessagesReceived  uint64 `json:"messages_received"`
	LateDiscards      uint64 `json:"late_discards"`
	MalformedRecords  uint64 `json:"malformed_records"`
	TransportErrors   uint64 `json:"transport_errors"`
	HandlerPanics     uint64 `json:"handler_panics"`
	ModeratedMessages uint64 `json:"moderated_messages"`
}

// Stats aggregates counters with atomics; every increment is safe from
// any goroutine.
type Stats struct {
	log *slog.Logger

	sent      atomic.Uint64
	received  atomic.Uint64
	discarded atomic.Uint64
	malformed atomic.Uint64
	transport atomic.Uint64
	panics    atomic.Uint64
	moderated atomic.Uint64
}

func NewStats(log *slog.Logger) *Stats {
	return &Stats{log: log}
}

func (s *Stats) IncrSent()     { s.sent.Add(1) }
func (s *Stats) IncrReceived() { s.received.Add(1) }

// IncrLateDiscard also logs: a discarded delivery is exactly the kind
// of silent behavior someone will want to trace later.
func (s *Stats) IncrLateDiscard(reason, msgID, roomID string) {
	s.discarded.Add(1)
	s.log.Info("discarded late delivery", "reason", reason, "id", msgID, "room", roomID)
}

func (s *Stats) IncrMalformed()      { s.malformed.Add(1) }
func (s *Stats) IncrTransportError() { s.transport.Add(1) }
func (s *Stats) IncrHandlerPanic()   { s.panics.Add(1) }
func (s *Stats) IncrModerated()      { s.moderated.Add(1) }

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		MessagesSent:      s.sent.Load(),
		MessagesReceived:  s.received.Load(),
		LateDiscards:      s.discarded.Load(),
		MalformedRecords:  s.malformed.Load(),
		TransportErrors:   s.transport.Load(),
		HandlerPanics:     s.panics.Load(),
		ModeratedMessages: s.moderated.Load(),
	}
}
