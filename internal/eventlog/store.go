// Package eventlog owns the durable, ordered, append-only event history.
//
// The store is the engine's persistence port: the only contract the core
// depends on is atomic compare-and-append with gapless per-aggregate
// sequences. Everything else (current state, projections, caches) is a
// derived view over ReadFrom.
package eventlog

import (
	"context"

	"github.com/google/uuid"

	"taskstream/internal/aggregate"
)

// Store is the persistence port for aggregate event streams.
type Store interface {
	// LoadCurrentVersion returns the last committed sequence for the
	// aggregate, or 0 when no events exist.
	LoadCurrentVersion(ctx context.Context, aggregateID uuid.UUID) (uint64, error)

	// AppendEvents atomically appends events if and only if the stream's
	// current version equals expectedVersion. Sequences are assigned
	// contiguously starting at expectedVersion+1 and the stamped events
	// are returned. A failed predicate yields sentinel.ErrVersionConflict;
	// transient storage trouble yields sentinel.ErrUnavailable (wrapped).
	// An event is never observable as committed unless the whole append
	// committed.
	AppendEvents(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []aggregate.Event) ([]aggregate.Event, error)

	// ReadFrom returns all committed events for the aggregate with
	// sequence strictly greater than sinceSeq, in sequence order. It is
	// finite and replayable; reconnecting subscribers resume with it.
	ReadFrom(ctx context.Context, aggregateID uuid.UUID, sinceSeq uint64) ([]aggregate.Event, error)
}

// OutboxEntry is a committed event awaiting relay to the external stream.
type OutboxEntry struct {
	ID    int64
	Event aggregate.Event
}

// Outbox feeds the Kafka relay. Rows are written in the same transaction
// as their events, so the relay never sees an uncommitted event.
type Outbox interface {
	ReadUndispatched(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkDispatched(ctx context.Context, ids []int64) error
}
