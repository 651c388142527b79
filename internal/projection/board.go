// Package projection maintains fold-based read views derived from committed
// events. Views are never authoritative; any of them can be rebuilt by
// replaying the log.
package projection

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskstream/internal/aggregate"
	"taskstream/internal/subscription"
	id "taskstream/pkg/domain"
)

// TaskView is the read model of one task.
type TaskView struct {
	ID        id.TaskID            `json:"id"`
	ProjectID id.ProjectID         `json:"project_id"`
	Title     string               `json:"title"`
	Status    aggregate.TaskStatus `json:"status"`
	Assignee  id.UserID            `json:"assignee"`
	DueDate   *time.Time           `json:"due_date,omitempty"`
	Version   uint64               `json:"version"`
}

// Open reports whether the task counts against its project's archive rule.
func (v TaskView) Open() bool {
	return v.Status == aggregate.TaskStatusTodo || v.Status == aggregate.TaskStatusInProgress
}

// ProjectView is the read model of one project.
type ProjectView struct {
	ID        id.ProjectID            `json:"id"`
	Name      string                  `json:"name"`
	Status    aggregate.ProjectStatus `json:"status"`
	OpenTasks int                     `json:"open_tasks"`
	Version   uint64                  `json:"version"`
}

// AssignmentView is the read model of one assignment.
type AssignmentView struct {
	ID       id.AssignmentID            `json:"id"`
	TaskID   id.TaskID                  `json:"task_id"`
	Assignee id.UserID                  `json:"assignee"`
	Status   aggregate.AssignmentStatus `json:"status"`
	Version  uint64                     `json:"version"`
}

// HistoryReader supplies the full event history for a rebuild. Order only
// matters within an aggregate.
type HistoryReader interface {
	ReadAllEvents(ctx context.Context) ([]aggregate.Event, error)
}

// Board is the in-memory read model over all aggregates. It consumes the
// same committed-event feed as the broadcast dispatcher and additionally
// answers event routing and the open-task archive check.
type Board struct {
	mu            sync.RWMutex
	tasks         map[id.TaskID]*TaskView
	projects      map[id.ProjectID]*ProjectView
	assignments   map[id.AssignmentID]*AssignmentView
	openByProject map[id.ProjectID]int
	applied       map[uuid.UUID]uint64
}

func NewBoard() *Board {
	return &Board{
		tasks:         make(map[id.TaskID]*TaskView),
		projects:      make(map[id.ProjectID]*ProjectView),
		assignments:   make(map[id.AssignmentID]*AssignmentView),
		openByProject: make(map[id.ProjectID]int),
		applied:       make(map[uuid.UUID]uint64),
	}
}

// Rebuild replays the full history into a fresh board state.
func (b *Board) Rebuild(ctx context.Context, reader HistoryReader) error {
	events, err := reader.ReadAllEvents(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.tasks = make(map[id.TaskID]*TaskView)
	b.projects = make(map[id.ProjectID]*ProjectView)
	b.assignments = make(map[id.AssignmentID]*AssignmentView)
	b.openByProject = make(map[id.ProjectID]int)
	b.applied = make(map[uuid.UUID]uint64)
	for _, event := range events {
		b.applyLocked(event)
	}
	b.mu.Unlock()
	return nil
}

// Publish folds committed events into the views. Application is idempotent
// keyed by (aggregate id, sequence).
func (b *Board) Publish(events []aggregate.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, event := range events {
		b.applyLocked(event)
	}
}

func (b *Board) applyLocked(event aggregate.Event) {
	if event.Seq <= b.applied[event.AggregateID] {
		return
	}
	b.applied[event.AggregateID] = event.Seq

	switch event.AggregateType {
	case aggregate.TypeTask:
		b.applyTaskLocked(event)
	case aggregate.TypeProject:
		b.applyProjectLocked(event)
	case aggregate.TypeAssignment:
		b.applyAssignmentLocked(event)
	}
}

func (b *Board) applyTaskLocked(event aggregate.Event) {
	taskID := id.TaskID(event.AggregateID)
	view := b.tasks[taskID]
	wasOpen := view != nil && view.Open()

	switch p := event.Payload.(type) {
	case aggregate.TaskCreated:
		view = &TaskView{
			ID:        taskID,
			ProjectID: p.ProjectID,
			Title:     p.Title,
			Status:    aggregate.TaskStatusTodo,
			DueDate:   p.DueDate,
		}
		b.tasks[taskID] = view
	case aggregate.TaskStatusChanged:
		if view == nil {
			return
		}
		view.Status = p.To
	case aggregate.TaskReopened:
		if view == nil {
			return
		}
		view.Status = aggregate.TaskStatusTodo
	case aggregate.TaskAssigned:
		if view == nil {
			return
		}
		view.Assignee = p.Assignee
	case aggregate.TaskUnassigned:
		if view == nil {
			return
		}
		view.Assignee = id.UserID{}
	case aggregate.TaskDueDateChanged:
		if view == nil {
			return
		}
		view.DueDate = p.DueDate
	case aggregate.TaskRetired:
		if view == nil {
			return
		}
		view.Status = aggregate.TaskStatusRetired
	default:
		return
	}

	view.Version = event.Seq
	if isOpen := view.Open(); isOpen != wasOpen {
		if isOpen {
			b.openByProject[view.ProjectID]++
		} else {
			b.openByProject[view.ProjectID]--
		}
	}
}

func (b *Board) applyProjectLocked(event aggregate.Event) {
	projectID := id.ProjectID(event.AggregateID)
	view := b.projects[projectID]

	switch p := event.Payload.(type) {
	case aggregate.ProjectCreated:
		view = &ProjectView{ID: projectID, Name: p.Name, Status: aggregate.ProjectStatusActive}
		b.projects[projectID] = view
	case aggregate.ProjectRenamed:
		if view == nil {
			return
		}
		view.Name = p.Name
	case aggregate.ProjectArchived:
		if view == nil {
			return
		}
		view.Status = aggregate.ProjectStatusArchived
	default:
		return
	}
	view.Version = event.Seq
}

func (b *Board) applyAssignmentLocked(event aggregate.Event) {
	assignmentID := id.AssignmentID(event.AggregateID)
	view := b.assignments[assignmentID]

	switch p := event.Payload.(type) {
	case aggregate.AssignmentCreated:
		view = &AssignmentView{
			ID:       assignmentID,
			TaskID:   p.TaskID,
			Assignee: p.Assignee,
			Status:   aggregate.AssignmentStatusPending,
		}
		b.assignments[assignmentID] = view
	case aggregate.AssignmentAccepted:
		if view == nil {
			return
		}
		view.Status = aggregate.AssignmentStatusAccepted
	case aggregate.AssignmentDeclined:
		if view == nil {
			return
		}
		view.Status = aggregate.AssignmentStatusDeclined
	case aggregate.AssignmentRevoked:
		if view == nil {
			return
		}
		view.Status = aggregate.AssignmentStatusRevoked
	default:
		return
	}
	view.Version = event.Seq
}

// OpenTasks reports how many tasks in the project are todo or in progress.
func (b *Board) OpenTasks(projectID id.ProjectID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.openByProject[projectID]
}

// Route resolves the routing facets of an event. The board is applied before
// the dispatcher publishes, so views already reflect the event; payload
// facts cover the remaining first-event cases.
func (b *Board) Route(event aggregate.Event) subscription.Route {
	route := subscription.Route{AggregateID: event.AggregateID}

	b.mu.RLock()
	defer b.mu.RUnlock()

	switch event.AggregateType {
	case aggregate.TypeProject:
		route.ProjectID = id.ProjectID(event.AggregateID)

	case aggregate.TypeTask:
		if view := b.tasks[id.TaskID(event.AggregateID)]; view != nil {
			route.ProjectID = view.ProjectID
			if !view.Assignee.IsNil() {
				route.Assignees = append(route.Assignees, view.Assignee)
			}
		}
		switch p := event.Payload.(type) {
		case aggregate.TaskCreated:
			route.ProjectID = p.ProjectID
		case aggregate.TaskAssigned:
			route.Assignees = appendUserOnce(route.Assignees, p.Assignee)
		case aggregate.TaskUnassigned:
			// The ex-assignee sees the binding end.
			route.Assignees = appendUserOnce(route.Assignees, p.Previous)
		}

	case aggregate.TypeAssignment:
		view := b.assignments[id.AssignmentID(event.AggregateID)]
		if created, ok := event.Payload.(aggregate.AssignmentCreated); ok {
			route.Assignees = appendUserOnce(route.Assignees, created.Assignee)
			if task := b.tasks[created.TaskID]; task != nil {
				route.ProjectID = task.ProjectID
			}
		} else if view != nil {
			route.Assignees = appendUserOnce(route.Assignees, view.Assignee)
			if task := b.tasks[view.TaskID]; task != nil {
				route.ProjectID = task.ProjectID
			}
		}
	}
	return route
}

func appendUserOnce(users []id.UserID, user id.UserID) []id.UserID {
	if user.IsNil() {
		return users
	}
	for _, existing := range users {
		if existing == user {
			return users
		}
	}
	return append(users, user)
}

// Task returns a copy of the task view.
func (b *Board) Task(taskID id.TaskID) (TaskView, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	view := b.tasks[taskID]
	if view == nil {
		return TaskView{}, false
	}
	return *view, true
}

// Project returns a copy of the project view with its open-task count.
func (b *Board) Project(projectID id.ProjectID) (ProjectView, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	view := b.projects[projectID]
	if view == nil {
		return ProjectView{}, false
	}
	out := *view
	out.OpenTasks = b.openByProject[projectID]
	return out, true
}

// Assignment returns a copy of the assignment view.
func (b *Board) Assignment(assignmentID id.AssignmentID) (AssignmentView, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	view := b.assignments[assignmentID]
	if view == nil {
		return AssignmentView{}, false
	}
	return *view, true
}

// TasksByProject lists the project's non-retired tasks, title-ordered.
func (b *Board) TasksByProject(projectID id.ProjectID) []TaskView {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []TaskView
	for _, view := range b.tasks {
		if view.ProjectID == projectID && view.Status != aggregate.TaskStatusRetired {
			out = append(out, *view)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}
