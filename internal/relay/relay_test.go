package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"taskstream/internal/aggregate"
	"taskstream/internal/eventlog"
	"taskstream/internal/platform/metrics"
	id "taskstream/pkg/domain"
)

var testMetrics = metrics.New()

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeProducer struct {
	records []*kgo.Record
	fail    error
}

func (f *fakeProducer) Produce(_ context.Context, records []*kgo.Record) error {
	if f.fail != nil {
		return f.fail
	}
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeProducer) Close() {}

func appendTask(t *testing.T, store *eventlog.InMemoryStore, taskID id.TaskID) {
	t.Helper()
	_, err := store.AppendEvents(context.Background(), uuid.UUID(taskID), 0, []aggregate.Event{{
		AggregateType: aggregate.TypeTask,
		AggregateID:   uuid.UUID(taskID),
		Kind:          aggregate.EventTaskCreated,
		Actor:         id.UserID(uuid.New()),
		OccurredAt:    time.Now().UTC(),
		Payload:       aggregate.TaskCreated{ProjectID: id.ProjectID(uuid.New()), Title: "relay me"},
	}})
	require.NoError(t, err)
}

func TestDrain_PublishesAndMarksDispatched(t *testing.T) {
	store := eventlog.NewInMemoryStore()
	producer := &fakeProducer{}
	r := New(store, producer, quietLogger(), testMetrics, time.Second)

	taskID := id.TaskID(uuid.New())
	appendTask(t, store, taskID)

	require.NoError(t, r.Drain(context.Background()))
	require.Len(t, producer.records, 1)

	record := producer.records[0]
	assert.Equal(t, uuid.UUID(taskID).String(), string(record.Key))

	var env envelope
	require.NoError(t, json.Unmarshal(record.Value, &env))
	assert.Equal(t, string(aggregate.TypeTask), env.AggregateType)
	assert.Equal(t, uint64(1), env.Seq)
	assert.Equal(t, string(aggregate.EventTaskCreated), env.Kind)
	assert.NotEmpty(t, env.Actor)

	var payload aggregate.TaskCreated
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "relay me", payload.Title)

	// Rows are gone; a second drain publishes nothing.
	require.NoError(t, r.Drain(context.Background()))
	assert.Len(t, producer.records, 1)
}

func TestDrain_FailedPublishLeavesRowsForRetry(t *testing.T) {
	store := eventlog.NewInMemoryStore()
	producer := &fakeProducer{fail: errors.New("broker down")}
	r := New(store, producer, quietLogger(), testMetrics, time.Second)

	appendTask(t, store, id.TaskID(uuid.New()))

	require.Error(t, r.Drain(context.Background()))

	entries, err := store.ReadUndispatched(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "unacknowledged rows stay in the outbox")

	// Broker recovers; the same row is relayed.
	producer.fail = nil
	require.NoError(t, r.Drain(context.Background()))
	assert.Len(t, producer.records, 1)

	entries, err = store.ReadUndispatched(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDrain_PreservesPerAggregateOrder(t *testing.T) {
	store := eventlog.NewInMemoryStore()
	producer := &fakeProducer{}
	r := New(store, producer, quietLogger(), testMetrics, time.Second)

	taskID := id.TaskID(uuid.New())
	appendTask(t, store, taskID)
	_, err := store.AppendEvents(context.Background(), uuid.UUID(taskID), 1, []aggregate.Event{{
		AggregateType: aggregate.TypeTask,
		AggregateID:   uuid.UUID(taskID),
		Kind:          aggregate.EventTaskStatusChanged,
		OccurredAt:    time.Now().UTC(),
		Payload:       aggregate.TaskStatusChanged{From: aggregate.TaskStatusTodo, To: aggregate.TaskStatusInProgress},
	}})
	require.NoError(t, err)

	require.NoError(t, r.Drain(context.Background()))
	require.Len(t, producer.records, 2)

	var first, second envelope
	require.NoError(t, json.Unmarshal(producer.records[0].Value, &first))
	require.NoError(t, json.Unmarshal(producer.records[1].Value, &second))
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, producer.records[0].Key, producer.records[1].Key, "same aggregate keys to same partition")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := eventlog.NewInMemoryStore()
	r := New(store, &fakeProducer{}, quietLogger(), testMetrics, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
