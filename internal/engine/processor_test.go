package engine

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"taskstream/internal/aggregate"
	"taskstream/internal/eventlog"
	"taskstream/internal/platform/metrics"
	mockeventlog "taskstream/mocks/eventlog"
	id "taskstream/pkg/domain"
	dErrors "taskstream/pkg/domain-errors"
	"taskstream/pkg/platform/sentinel"
)

// Prometheus collectors register globally; one set per test binary.
var testMetrics = metrics.New()

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type capturePublisher struct {
	mu     sync.Mutex
	events []aggregate.Event
}

func (c *capturePublisher) Publish(events []aggregate.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
}

func (c *capturePublisher) all() []aggregate.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]aggregate.Event{}, c.events...)
}

func newTestProcessor(store eventlog.Store, opts ...Option) (*Processor, *capturePublisher) {
	pub := &capturePublisher{}
	p := NewProcessor(store, quietLogger(), testMetrics, []Publisher{pub}, opts...)
	return p, pub
}

func createTaskCmd(taskID id.TaskID, projectID id.ProjectID) Command {
	return Command{
		AggregateType:   aggregate.TypeTask,
		AggregateID:     uuid.UUID(taskID),
		ExpectedVersion: 0,
		Actor:           id.UserID(uuid.New()),
		Payload:         aggregate.CreateTask{TaskID: taskID, ProjectID: projectID, Title: "write spec"},
	}
}

func TestProcess_CommitsAndPublishes(t *testing.T) {
	store := eventlog.NewInMemoryStore()
	p, pub := newTestProcessor(store)
	taskID := id.TaskID(uuid.New())

	result, err := p.Process(context.Background(), createTaskCmd(taskID, id.ProjectID(uuid.New())))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.NewVersion)
	require.Len(t, result.Events, 1)
	assert.Equal(t, aggregate.EventTaskCreated, result.Events[0].Kind)

	published := pub.all()
	require.Len(t, published, 1)
	assert.Equal(t, uint64(1), published[0].Seq)

	// All-or-nothing: the committed history matches what was returned.
	history, err := store.ReadFrom(context.Background(), uuid.UUID(taskID), 0)
	require.NoError(t, err)
	assert.Equal(t, result.Events, history)
}

// Two sessions both hold Task T at version 3. A commits SetStatus(Done) and
// reaches version 4; B's Assign at expectedVersion=3 conflicts and learns
// the current version.
func TestProcess_StaleWriterConflicts(t *testing.T) {
	store := eventlog.NewInMemoryStore()
	p, _ := newTestProcessor(store)
	ctx := context.Background()
	taskID := id.TaskID(uuid.New())

	_, err := p.Process(ctx, createTaskCmd(taskID, id.ProjectID(uuid.New())))
	require.NoError(t, err)
	_, err = p.Process(ctx, Command{
		AggregateType: aggregate.TypeTask, AggregateID: uuid.UUID(taskID), ExpectedVersion: 1,
		Payload: aggregate.AssignTask{TaskID: taskID, Assignee: id.UserID(uuid.New())},
	})
	require.NoError(t, err)
	_, err = p.Process(ctx, Command{
		AggregateType: aggregate.TypeTask, AggregateID: uuid.UUID(taskID), ExpectedVersion: 2,
		Payload: aggregate.SetTaskStatus{TaskID: taskID, Status: aggregate.TaskStatusInProgress},
	})
	require.NoError(t, err)

	// Session A wins.
	resultA, err := p.Process(ctx, Command{
		AggregateType: aggregate.TypeTask, AggregateID: uuid.UUID(taskID), ExpectedVersion: 3,
		Payload: aggregate.SetTaskStatus{TaskID: taskID, Status: aggregate.TaskStatusDone},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), resultA.NewVersion)

	// Session B loses and learns version 4.
	_, err = p.Process(ctx, Command{
		AggregateType: aggregate.TypeTask, AggregateID: uuid.UUID(taskID), ExpectedVersion: 3,
		Payload: aggregate.AssignTask{TaskID: taskID, Assignee: id.UserID(uuid.New())},
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint64(4), conflict.CurrentVersion)
}

// Exactly-one-winner: N concurrent commands with the same expectedVersion
// against one aggregate; one succeeds, the rest conflict.
func TestProcess_ContentionSingleWinner(t *testing.T) {
	store := eventlog.NewInMemoryStore()
	p, _ := newTestProcessor(store)
	ctx := context.Background()
	taskID := id.TaskID(uuid.New())

	_, err := p.Process(ctx, createTaskCmd(taskID, id.ProjectID(uuid.New())))
	require.NoError(t, err)

	const contenders = 12
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := range contenders {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = p.Process(ctx, Command{
				AggregateType: aggregate.TypeTask, AggregateID: uuid.UUID(taskID), ExpectedVersion: 1,
				Payload: aggregate.AssignTask{TaskID: taskID, Assignee: id.UserID(uuid.New())},
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, uint64(2), conflict.CurrentVersion)
	}
	assert.Equal(t, 1, winners)
}

func TestProcess_DomainRejectionsSurface(t *testing.T) {
	store := eventlog.NewInMemoryStore()
	p, pub := newTestProcessor(store)
	ctx := context.Background()
	taskID := id.TaskID(uuid.New())

	t.Run("validation error", func(t *testing.T) {
		_, err := p.Process(ctx, Command{
			AggregateType: aggregate.TypeTask, AggregateID: uuid.UUID(taskID), ExpectedVersion: 0,
			Payload: aggregate.CreateTask{TaskID: taskID, ProjectID: id.ProjectID(uuid.New()), Title: ""},
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("missing aggregate", func(t *testing.T) {
		_, err := p.Process(ctx, Command{
			AggregateType: aggregate.TypeTask, AggregateID: uuid.UUID(taskID), ExpectedVersion: 5,
			Payload: aggregate.RetireTask{TaskID: taskID},
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	assert.Empty(t, pub.all(), "rejected commands publish nothing")
}

func TestProcess_NoOpCommandCommitsNothing(t *testing.T) {
	store := eventlog.NewInMemoryStore()
	p, pub := newTestProcessor(store)
	ctx := context.Background()
	taskID := id.TaskID(uuid.New())

	_, err := p.Process(ctx, createTaskCmd(taskID, id.ProjectID(uuid.New())))
	require.NoError(t, err)
	before := len(pub.all())

	result, err := p.Process(ctx, Command{
		AggregateType: aggregate.TypeTask, AggregateID: uuid.UUID(taskID), ExpectedVersion: 1,
		Payload: aggregate.SetTaskStatus{TaskID: taskID, Status: aggregate.TaskStatusTodo},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.NewVersion)
	assert.Empty(t, result.Events)
	assert.Len(t, pub.all(), before)
}

type fixedBoard struct{ open int }

func (b fixedBoard) OpenTasks(id.ProjectID) int { return b.open }

func TestProcess_ArchiveBlockedByOpenTasks(t *testing.T) {
	store := eventlog.NewInMemoryStore()
	ctx := context.Background()
	projectID := id.ProjectID(uuid.New())

	p, _ := newTestProcessor(store, WithOpenTaskCounter(fixedBoard{open: 2}))
	_, err := p.Process(ctx, Command{
		AggregateType: aggregate.TypeProject, AggregateID: uuid.UUID(projectID), ExpectedVersion: 0,
		Payload: aggregate.CreateProject{ProjectID: projectID, Name: "launch"},
	})
	require.NoError(t, err)

	_, err = p.Process(ctx, Command{
		AggregateType: aggregate.TypeProject, AggregateID: uuid.UUID(projectID), ExpectedVersion: 1,
		Payload: aggregate.ArchiveProject{ProjectID: projectID},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	clear, _ := newTestProcessor(store, WithOpenTaskCounter(fixedBoard{}))
	result, err := clear.Process(ctx, Command{
		AggregateType: aggregate.TypeProject, AggregateID: uuid.UUID(projectID), ExpectedVersion: 1,
		Payload: aggregate.ArchiveProject{ProjectID: projectID},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.NewVersion)
}

func TestProcess_RetriesTransientAppendFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mockeventlog.NewMockStore(ctrl)
	p, pub := newTestProcessor(store, WithRetry(3, time.Millisecond))
	taskID := id.TaskID(uuid.New())
	cmd := createTaskCmd(taskID, id.ProjectID(uuid.New()))

	store.EXPECT().ReadFrom(gomock.Any(), uuid.UUID(taskID), uint64(0)).Return(nil, nil)

	flaky := sentinel.ErrUnavailable
	gomock.InOrder(
		store.EXPECT().AppendEvents(gomock.Any(), uuid.UUID(taskID), uint64(0), gomock.Any()).Return(nil, flaky),
		store.EXPECT().AppendEvents(gomock.Any(), uuid.UUID(taskID), uint64(0), gomock.Any()).Return(nil, flaky),
		store.EXPECT().AppendEvents(gomock.Any(), uuid.UUID(taskID), uint64(0), gomock.Any()).DoAndReturn(
			func(_ context.Context, _ uuid.UUID, _ uint64, events []aggregate.Event) ([]aggregate.Event, error) {
				stamped := append([]aggregate.Event{}, events...)
				stamped[0].Seq = 1
				return stamped, nil
			}),
	)

	result, err := p.Process(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.NewVersion)
	assert.Len(t, pub.all(), 1)
}

func TestProcess_SurfacesExhaustedRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mockeventlog.NewMockStore(ctrl)
	p, pub := newTestProcessor(store, WithRetry(1, time.Millisecond))
	taskID := id.TaskID(uuid.New())

	store.EXPECT().ReadFrom(gomock.Any(), uuid.UUID(taskID), uint64(0)).Return(nil, nil)
	store.EXPECT().AppendEvents(gomock.Any(), uuid.UUID(taskID), uint64(0), gomock.Any()).
		Return(nil, sentinel.ErrUnavailable).Times(2)

	_, err := p.Process(context.Background(), createTaskCmd(taskID, id.ProjectID(uuid.New())))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Empty(t, pub.all())
}
