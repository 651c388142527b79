package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"taskstream/internal/aggregate"
	id "taskstream/pkg/domain"
	"taskstream/pkg/platform/sentinel"
)

// PostgresStore implements Store and Outbox over one database. Outbox rows
// are written in the same transaction as their events, so the relay only
// ever sees committed history.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgUniqueViolation = "23505"

// EnsureSchema creates the event and outbox tables when missing. Kept here
// rather than in a migration tool because the engine owns these tables
// exclusively.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS events (
	aggregate_id   UUID        NOT NULL,
	aggregate_type TEXT        NOT NULL,
	seq            BIGINT      NOT NULL,
	kind           TEXT        NOT NULL,
	actor          UUID,
	occurred_at    TIMESTAMPTZ NOT NULL,
	payload        JSONB       NOT NULL,
	PRIMARY KEY (aggregate_id, seq)
);
CREATE TABLE IF NOT EXISTS outbox (
	id             BIGSERIAL PRIMARY KEY,
	aggregate_id   UUID        NOT NULL,
	aggregate_type TEXT        NOT NULL,
	seq            BIGINT      NOT NULL,
	kind           TEXT        NOT NULL,
	actor          UUID,
	occurred_at    TIMESTAMPTZ NOT NULL,
	payload        JSONB       NOT NULL,
	dispatched     BOOLEAN     NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS outbox_undispatched_idx ON outbox (id) WHERE NOT dispatched;`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure event log schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadCurrentVersion(ctx context.Context, aggregateID uuid.UUID) (uint64, error) {
	var version uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&version)
	if err != nil {
		return 0, wrapUnavailable(err, "load current version")
	}
	return version, nil
}

func (s *PostgresStore) AppendEvents(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []aggregate.Event) ([]aggregate.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapUnavailable(err, "begin append tx")
	}
	defer tx.Rollback()

	var current uint64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&current)
	if err != nil {
		return nil, wrapUnavailable(err, "read stream version")
	}
	if current != expectedVersion {
		return nil, sentinel.ErrVersionConflict
	}

	stamped := make([]aggregate.Event, len(events))
	for i, evt := range events {
		evt.Seq = expectedVersion + uint64(i) + 1
		if evt.OccurredAt.IsZero() {
			evt.OccurredAt = time.Now().UTC()
		}
		stamped[i] = evt

		payload, err := aggregate.EncodePayload(evt.Payload)
		if err != nil {
			return nil, err
		}

		var actor any
		if !evt.Actor.IsNil() {
			actor = uuid.UUID(evt.Actor)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (aggregate_id, aggregate_type, seq, kind, actor, occurred_at, payload)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			aggregateID, string(evt.AggregateType), evt.Seq, string(evt.Kind), actor, evt.OccurredAt, payload,
		)
		if err != nil {
			// A concurrent append won the (aggregate_id, seq) slot
			// between our version read and this insert.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return nil, sentinel.ErrVersionConflict
			}
			return nil, wrapUnavailable(err, "insert event")
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO outbox (aggregate_id, aggregate_type, seq, kind, actor, occurred_at, payload)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			aggregateID, string(evt.AggregateType), evt.Seq, string(evt.Kind), actor, evt.OccurredAt, payload,
		)
		if err != nil {
			return nil, wrapUnavailable(err, "insert outbox row")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapUnavailable(err, "commit append")
	}
	return stamped, nil
}

func (s *PostgresStore) ReadFrom(ctx context.Context, aggregateID uuid.UUID, sinceSeq uint64) ([]aggregate.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT aggregate_type, seq, kind, actor, occurred_at, payload
		 FROM events WHERE aggregate_id = $1 AND seq > $2 ORDER BY seq`,
		aggregateID, sinceSeq,
	)
	if err != nil {
		return nil, wrapUnavailable(err, "read events")
	}
	defer rows.Close()

	var events []aggregate.Event
	for rows.Next() {
		evt, err := scanEvent(rows, aggregateID)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable(err, "read events")
	}
	return events, nil
}

// ReadAllEvents returns the whole history for projection rebuilds, ordered
// per aggregate.
func (s *PostgresStore) ReadAllEvents(ctx context.Context) ([]aggregate.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT aggregate_id, aggregate_type, seq, kind, actor, occurred_at, payload
		 FROM events ORDER BY aggregate_id, seq`,
	)
	if err != nil {
		return nil, wrapUnavailable(err, "read all events")
	}
	defer rows.Close()

	var events []aggregate.Event
	for rows.Next() {
		var (
			evt     aggregate.Event
			aggType string
			kind    string
			actor   sql.Null[uuid.UUID]
			payload []byte
		)
		err := rows.Scan(&evt.AggregateID, &aggType, &evt.Seq, &kind, &actor, &evt.OccurredAt, &payload)
		if err != nil {
			return nil, wrapUnavailable(err, "scan event row")
		}
		evt.AggregateType = aggregate.Type(aggType)
		evt.Kind = aggregate.EventKind(kind)
		if actor.Valid {
			evt.Actor = id.UserID(actor.V)
		}
		decoded, err := aggregate.DecodePayload(evt.Kind, payload)
		if err != nil {
			return nil, err
		}
		evt.Payload = decoded
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable(err, "read all events")
	}
	return events, nil
}

func (s *PostgresStore) ReadUndispatched(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, seq, kind, actor, occurred_at, payload
		 FROM outbox WHERE NOT dispatched ORDER BY id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, wrapUnavailable(err, "read outbox")
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			entry       OutboxEntry
			aggregateID uuid.UUID
			aggType     string
			kind        string
			actor       sql.Null[uuid.UUID]
			payload     []byte
		)
		err := rows.Scan(&entry.ID, &aggregateID, &aggType, &entry.Event.Seq, &kind, &actor, &entry.Event.OccurredAt, &payload)
		if err != nil {
			return nil, wrapUnavailable(err, "scan outbox row")
		}
		entry.Event.AggregateID = aggregateID
		entry.Event.AggregateType = aggregate.Type(aggType)
		entry.Event.Kind = aggregate.EventKind(kind)
		if actor.Valid {
			entry.Event.Actor = id.UserID(actor.V)
		}
		decoded, err := aggregate.DecodePayload(entry.Event.Kind, payload)
		if err != nil {
			return nil, err
		}
		entry.Event.Payload = decoded
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable(err, "read outbox")
	}
	return entries, nil
}

func (s *PostgresStore) MarkDispatched(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET dispatched = TRUE WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return wrapUnavailable(err, "mark outbox dispatched")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, aggregateID uuid.UUID) (aggregate.Event, error) {
	var (
		evt     aggregate.Event
		aggType string
		kind    string
		actor   sql.Null[uuid.UUID]
		payload []byte
	)
	if err := row.Scan(&aggType, &evt.Seq, &kind, &actor, &evt.OccurredAt, &payload); err != nil {
		return aggregate.Event{}, wrapUnavailable(err, "scan event row")
	}
	evt.AggregateID = aggregateID
	evt.AggregateType = aggregate.Type(aggType)
	evt.Kind = aggregate.EventKind(kind)
	if actor.Valid {
		evt.Actor = id.UserID(actor.V)
	}
	decoded, err := aggregate.DecodePayload(evt.Kind, payload)
	if err != nil {
		return aggregate.Event{}, err
	}
	evt.Payload = decoded
	return evt, nil
}

func wrapUnavailable(err error, op string) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}
