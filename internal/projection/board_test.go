package projection

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskstream/internal/aggregate"
	id "taskstream/pkg/domain"
)

func event(t aggregate.Type, aggregateID uuid.UUID, seq uint64, payload aggregate.EventPayload) aggregate.Event {
	return aggregate.Event{
		AggregateType: t,
		AggregateID:   aggregateID,
		Seq:           seq,
		Kind:          payload.EventKind(),
		Payload:       payload,
	}
}

func TestBoard_TaskLifecycle(t *testing.T) {
	board := NewBoard()
	projectID := id.ProjectID(uuid.New())
	taskID := id.TaskID(uuid.New())
	assignee := id.UserID(uuid.New())

	board.Publish([]aggregate.Event{
		event(aggregate.TypeProject, uuid.UUID(projectID), 1, aggregate.ProjectCreated{Name: "launch"}),
		event(aggregate.TypeTask, uuid.UUID(taskID), 1, aggregate.TaskCreated{ProjectID: projectID, Title: "ship it"}),
		event(aggregate.TypeTask, uuid.UUID(taskID), 2, aggregate.TaskAssigned{Assignee: assignee}),
		event(aggregate.TypeTask, uuid.UUID(taskID), 3, aggregate.TaskStatusChanged{From: aggregate.TaskStatusTodo, To: aggregate.TaskStatusInProgress}),
	})

	view, ok := board.Task(taskID)
	require.True(t, ok)
	assert.Equal(t, "ship it", view.Title)
	assert.Equal(t, aggregate.TaskStatusInProgress, view.Status)
	assert.Equal(t, assignee, view.Assignee)
	assert.Equal(t, uint64(3), view.Version)

	project, ok := board.Project(projectID)
	require.True(t, ok)
	assert.Equal(t, "launch", project.Name)
	assert.Equal(t, 1, project.OpenTasks)
}

func TestBoard_OpenTaskCounting(t *testing.T) {
	board := NewBoard()
	projectID := id.ProjectID(uuid.New())
	first := id.TaskID(uuid.New())
	second := id.TaskID(uuid.New())

	board.Publish([]aggregate.Event{
		event(aggregate.TypeTask, uuid.UUID(first), 1, aggregate.TaskCreated{ProjectID: projectID, Title: "a"}),
		event(aggregate.TypeTask, uuid.UUID(second), 1, aggregate.TaskCreated{ProjectID: projectID, Title: "b"}),
	})
	assert.Equal(t, 2, board.OpenTasks(projectID))

	board.Publish([]aggregate.Event{
		event(aggregate.TypeTask, uuid.UUID(first), 2, aggregate.TaskStatusChanged{From: aggregate.TaskStatusTodo, To: aggregate.TaskStatusInProgress}),
	})
	assert.Equal(t, 2, board.OpenTasks(projectID), "in_progress still counts as open")

	board.Publish([]aggregate.Event{
		event(aggregate.TypeTask, uuid.UUID(first), 3, aggregate.TaskStatusChanged{From: aggregate.TaskStatusInProgress, To: aggregate.TaskStatusDone}),
		event(aggregate.TypeTask, uuid.UUID(second), 2, aggregate.TaskRetired{}),
	})
	assert.Equal(t, 0, board.OpenTasks(projectID))

	board.Publish([]aggregate.Event{
		event(aggregate.TypeTask, uuid.UUID(first), 4, aggregate.TaskReopened{}),
	})
	assert.Equal(t, 1, board.OpenTasks(projectID))
}

func TestBoard_IdempotentApplication(t *testing.T) {
	board := NewBoard()
	projectID := id.ProjectID(uuid.New())
	taskID := id.TaskID(uuid.New())

	created := event(aggregate.TypeTask, uuid.UUID(taskID), 1, aggregate.TaskCreated{ProjectID: projectID, Title: "a"})
	started := event(aggregate.TypeTask, uuid.UUID(taskID), 2, aggregate.TaskStatusChanged{From: aggregate.TaskStatusTodo, To: aggregate.TaskStatusInProgress})

	board.Publish([]aggregate.Event{created, started})
	once, _ := board.Task(taskID)
	openOnce := board.OpenTasks(projectID)

	// Redelivery of already-applied sequences changes nothing.
	board.Publish([]aggregate.Event{created, started})
	twice, _ := board.Task(taskID)
	assert.Equal(t, once, twice)
	assert.Equal(t, openOnce, board.OpenTasks(projectID))
}

func TestBoard_Route(t *testing.T) {
	board := NewBoard()
	projectID := id.ProjectID(uuid.New())
	taskID := id.TaskID(uuid.New())
	assignmentID := id.AssignmentID(uuid.New())
	assignee := id.UserID(uuid.New())

	createdTask := event(aggregate.TypeTask, uuid.UUID(taskID), 1, aggregate.TaskCreated{ProjectID: projectID, Title: "a"})
	board.Publish([]aggregate.Event{createdTask})

	route := board.Route(createdTask)
	assert.Equal(t, projectID, route.ProjectID)
	assert.Empty(t, route.Assignees)

	assigned := event(aggregate.TypeTask, uuid.UUID(taskID), 2, aggregate.TaskAssigned{Assignee: assignee})
	board.Publish([]aggregate.Event{assigned})
	route = board.Route(assigned)
	assert.Equal(t, projectID, route.ProjectID)
	assert.Equal(t, []id.UserID{assignee}, route.Assignees)

	unassigned := event(aggregate.TypeTask, uuid.UUID(taskID), 3, aggregate.TaskUnassigned{Previous: assignee})
	board.Publish([]aggregate.Event{unassigned})
	route = board.Route(unassigned)
	assert.Equal(t, []id.UserID{assignee}, route.Assignees, "ex-assignee sees the binding end")

	createdAssignment := event(aggregate.TypeAssignment, uuid.UUID(assignmentID), 1,
		aggregate.AssignmentCreated{TaskID: taskID, Assignee: assignee})
	board.Publish([]aggregate.Event{createdAssignment})
	route = board.Route(createdAssignment)
	assert.Equal(t, projectID, route.ProjectID, "assignment routes through its task's project")
	assert.Equal(t, []id.UserID{assignee}, route.Assignees)

	archived := event(aggregate.TypeProject, uuid.UUID(projectID), 2, aggregate.ProjectArchived{})
	route = board.Route(archived)
	assert.Equal(t, projectID, route.ProjectID)
}

type staticHistory []aggregate.Event

func (h staticHistory) ReadAllEvents(context.Context) ([]aggregate.Event, error) {
	return h, nil
}

func TestBoard_RebuildMatchesIncremental(t *testing.T) {
	projectID := id.ProjectID(uuid.New())
	taskID := id.TaskID(uuid.New())
	assignee := id.UserID(uuid.New())

	history := []aggregate.Event{
		event(aggregate.TypeProject, uuid.UUID(projectID), 1, aggregate.ProjectCreated{Name: "launch"}),
		event(aggregate.TypeTask, uuid.UUID(taskID), 1, aggregate.TaskCreated{ProjectID: projectID, Title: "a"}),
		event(aggregate.TypeTask, uuid.UUID(taskID), 2, aggregate.TaskAssigned{Assignee: assignee}),
		event(aggregate.TypeTask, uuid.UUID(taskID), 3, aggregate.TaskStatusChanged{From: aggregate.TaskStatusTodo, To: aggregate.TaskStatusDone}),
	}

	incremental := NewBoard()
	for _, evt := range history {
		incremental.Publish([]aggregate.Event{evt})
	}

	rebuilt := NewBoard()
	require.NoError(t, rebuilt.Rebuild(context.Background(), staticHistory(history)))

	wantTask, _ := incremental.Task(taskID)
	gotTask, ok := rebuilt.Task(taskID)
	require.True(t, ok)
	assert.Equal(t, wantTask, gotTask)

	wantProject, _ := incremental.Project(projectID)
	gotProject, _ := rebuilt.Project(projectID)
	assert.Equal(t, wantProject, gotProject)
}

func TestBoard_TasksByProject(t *testing.T) {
	board := NewBoard()
	projectID := id.ProjectID(uuid.New())
	otherProject := id.ProjectID(uuid.New())
	alpha := id.TaskID(uuid.New())
	beta := id.TaskID(uuid.New())
	retired := id.TaskID(uuid.New())
	elsewhere := id.TaskID(uuid.New())

	board.Publish([]aggregate.Event{
		event(aggregate.TypeTask, uuid.UUID(beta), 1, aggregate.TaskCreated{ProjectID: projectID, Title: "beta"}),
		event(aggregate.TypeTask, uuid.UUID(alpha), 1, aggregate.TaskCreated{ProjectID: projectID, Title: "alpha"}),
		event(aggregate.TypeTask, uuid.UUID(retired), 1, aggregate.TaskCreated{ProjectID: projectID, Title: "gone"}),
		event(aggregate.TypeTask, uuid.UUID(retired), 2, aggregate.TaskRetired{}),
		event(aggregate.TypeTask, uuid.UUID(elsewhere), 1, aggregate.TaskCreated{ProjectID: otherProject, Title: "other"}),
	})

	views := board.TasksByProject(projectID)
	require.Len(t, views, 2)
	assert.Equal(t, "alpha", views[0].Title)
	assert.Equal(t, "beta", views[1].Title)
}
