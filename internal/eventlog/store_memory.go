package eventlog

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"taskstream/internal/aggregate"
	"taskstream/pkg/platform/sentinel"
)

// InMemoryStore keeps event streams in process memory. It backs unit tests
// and single-node development; the compare-and-append contract matches the
// postgres store exactly.
type InMemoryStore struct {
	mu      sync.RWMutex
	streams map[uuid.UUID][]aggregate.Event
	outbox  []OutboxEntry
	nextID  int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{streams: make(map[uuid.UUID][]aggregate.Event)}
}

func (s *InMemoryStore) LoadCurrentVersion(_ context.Context, aggregateID uuid.UUID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.streams[aggregateID])), nil
}

func (s *InMemoryStore) AppendEvents(_ context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []aggregate.Event) ([]aggregate.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := uint64(len(s.streams[aggregateID]))
	if current != expectedVersion {
		return nil, sentinel.ErrVersionConflict
	}

	stamped := make([]aggregate.Event, len(events))
	for i, evt := range events {
		evt.Seq = expectedVersion + uint64(i) + 1
		stamped[i] = evt

		s.nextID++
		s.outbox = append(s.outbox, OutboxEntry{ID: s.nextID, Event: evt})
	}
	s.streams[aggregateID] = append(s.streams[aggregateID], stamped...)

	return stamped, nil
}

func (s *InMemoryStore) ReadFrom(_ context.Context, aggregateID uuid.UUID, sinceSeq uint64) ([]aggregate.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	if sinceSeq >= uint64(len(stream)) {
		return nil, nil
	}
	return append([]aggregate.Event{}, stream[sinceSeq:]...), nil
}

// ReadAllEvents returns the whole history for projection rebuilds. Order is
// guaranteed per aggregate only.
func (s *InMemoryStore) ReadAllEvents(_ context.Context) ([]aggregate.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []aggregate.Event
	for _, stream := range s.streams {
		out = append(out, stream...)
	}
	return out, nil
}

func (s *InMemoryStore) ReadUndispatched(_ context.Context, limit int) ([]OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]OutboxEntry, 0, limit)
	for _, entry := range s.outbox {
		if len(out) == limit {
			break
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *InMemoryStore) MarkDispatched(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dispatched := make(map[int64]bool, len(ids))
	for _, entryID := range ids {
		dispatched[entryID] = true
	}
	kept := s.outbox[:0]
	for _, entry := range s.outbox {
		if !dispatched[entry.ID] {
			kept = append(kept, entry)
		}
	}
	s.outbox = kept
	return nil
}
