package aggregate

import (
	"strings"
	"time"

	"github.com/google/uuid"

	id "taskstream/pkg/domain"
	dErrors "taskstream/pkg/domain-errors"
)

// TaskStatus enumerates the task state machine.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	// TaskStatusRetired is terminal. Retired tasks are never physically
	// deleted while events referencing them exist.
	TaskStatusRetired TaskStatus = "retired"
)

// taskTransitions enumerates legal SetTaskStatus moves. Leaving "done"
// requires the explicit ReopenTask command; "retired" is terminal.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusTodo:       {TaskStatusInProgress},
	TaskStatusInProgress: {TaskStatusTodo, TaskStatusDone},
	TaskStatusDone:       {},
	TaskStatusRetired:    {},
}

// TaskState is the folded state of a Task aggregate.
type TaskState struct {
	ID        id.TaskID
	ProjectID id.ProjectID
	Title     string
	Status    TaskStatus
	Assignee  id.UserID
	DueDate   *time.Time

	version uint64
	created bool
}

func (s *TaskState) Type() Type      { return TypeTask }
func (s *TaskState) Version() uint64 { return s.version }
func (s *TaskState) Exists() bool    { return s.created }

// Open reports whether the task still counts against its project's
// archive rule.
func (s *TaskState) Open() bool {
	return s.created && (s.Status == TaskStatusTodo || s.Status == TaskStatusInProgress)
}

func (s *TaskState) live() bool {
	return s.created && s.Status != TaskStatusRetired
}

// Task command kinds.
const (
	CmdCreateTask     CommandKind = "create_task"
	CmdSetTaskStatus  CommandKind = "set_task_status"
	CmdReopenTask     CommandKind = "reopen_task"
	CmdAssignTask     CommandKind = "assign_task"
	CmdUnassignTask   CommandKind = "unassign_task"
	CmdSetTaskDueDate CommandKind = "set_task_due_date"
	CmdRetireTask     CommandKind = "retire_task"
)

// Task event kinds.
const (
	EventTaskCreated        EventKind = "task_created"
	EventTaskStatusChanged  EventKind = "task_status_changed"
	EventTaskReopened       EventKind = "task_reopened"
	EventTaskAssigned       EventKind = "task_assigned"
	EventTaskUnassigned     EventKind = "task_unassigned"
	EventTaskDueDateChanged EventKind = "task_due_date_changed"
	EventTaskRetired        EventKind = "task_retired"
)

type CreateTask struct {
	TaskID    id.TaskID
	ProjectID id.ProjectID
	Title     string
	DueDate   *time.Time
}

func (c CreateTask) CommandKind() CommandKind     { return CmdCreateTask }
func (c CreateTask) Aggregate() (Type, uuid.UUID) { return TypeTask, uuid.UUID(c.TaskID) }

type SetTaskStatus struct {
	TaskID id.TaskID
	Status TaskStatus
}

func (c SetTaskStatus) CommandKind() CommandKind     { return CmdSetTaskStatus }
func (c SetTaskStatus) Aggregate() (Type, uuid.UUID) { return TypeTask, uuid.UUID(c.TaskID) }

// ReopenTask moves a done task back to todo. It exists so that leaving the
// "done" state is always a deliberate act, never a side effect of a stale
// status write.
type ReopenTask struct {
	TaskID id.TaskID
}

func (c ReopenTask) CommandKind() CommandKind     { return CmdReopenTask }
func (c ReopenTask) Aggregate() (Type, uuid.UUID) { return TypeTask, uuid.UUID(c.TaskID) }

type AssignTask struct {
	TaskID   id.TaskID
	Assignee id.UserID
}

func (c AssignTask) CommandKind() CommandKind     { return CmdAssignTask }
func (c AssignTask) Aggregate() (Type, uuid.UUID) { return TypeTask, uuid.UUID(c.TaskID) }

type UnassignTask struct {
	TaskID id.TaskID
}

func (c UnassignTask) CommandKind() CommandKind     { return CmdUnassignTask }
func (c UnassignTask) Aggregate() (Type, uuid.UUID) { return TypeTask, uuid.UUID(c.TaskID) }

type SetTaskDueDate struct {
	TaskID  id.TaskID
	DueDate *time.Time
}

func (c SetTaskDueDate) CommandKind() CommandKind     { return CmdSetTaskDueDate }
func (c SetTaskDueDate) Aggregate() (Type, uuid.UUID) { return TypeTask, uuid.UUID(c.TaskID) }

type RetireTask struct {
	TaskID id.TaskID
}

func (c RetireTask) CommandKind() CommandKind     { return CmdRetireTask }
func (c RetireTask) Aggregate() (Type, uuid.UUID) { return TypeTask, uuid.UUID(c.TaskID) }

// Task event payloads.

type TaskCreated struct {
	ProjectID id.ProjectID `json:"project_id"`
	Title     string       `json:"title"`
	DueDate   *time.Time   `json:"due_date,omitempty"`
}

func (TaskCreated) EventKind() EventKind { return EventTaskCreated }

type TaskStatusChanged struct {
	From TaskStatus `json:"from"`
	To   TaskStatus `json:"to"`
}

func (TaskStatusChanged) EventKind() EventKind { return EventTaskStatusChanged }

type TaskReopened struct{}

func (TaskReopened) EventKind() EventKind { return EventTaskReopened }

type TaskAssigned struct {
	Assignee id.UserID `json:"assignee"`
}

func (TaskAssigned) EventKind() EventKind { return EventTaskAssigned }

type TaskUnassigned struct {
	// Previous carries the unassigned user so assignee-topic subscribers
	// see the binding end.
	Previous id.UserID `json:"previous"`
}

func (TaskUnassigned) EventKind() EventKind { return EventTaskUnassigned }

type TaskDueDateChanged struct {
	DueDate *time.Time `json:"due_date,omitempty"`
}

func (TaskDueDateChanged) EventKind() EventKind { return EventTaskDueDateChanged }

type TaskRetired struct{}

func (TaskRetired) EventKind() EventKind { return EventTaskRetired }

func decideTask(s *TaskState, cmd Command) ([]EventPayload, error) {
	switch c := cmd.(type) {
	case CreateTask:
		if s.Exists() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "task already exists")
		}
		if strings.TrimSpace(c.Title) == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "task title is required")
		}
		if c.ProjectID.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "task requires a project")
		}
		return []EventPayload{TaskCreated{ProjectID: c.ProjectID, Title: c.Title, DueDate: c.DueDate}}, nil

	case SetTaskStatus:
		if err := requireLiveTask(s); err != nil {
			return nil, err
		}
		if c.Status == s.Status {
			// Setting the current status is a no-op, not an error.
			return nil, nil
		}
		for _, allowed := range taskTransitions[s.Status] {
			if c.Status == allowed {
				return []EventPayload{TaskStatusChanged{From: s.Status, To: c.Status}}, nil
			}
		}
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
			"task status cannot change from %s to %s", s.Status, c.Status)

	case ReopenTask:
		if err := requireLiveTask(s); err != nil {
			return nil, err
		}
		if s.Status != TaskStatusDone {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "only done tasks can be reopened")
		}
		return []EventPayload{TaskReopened{}}, nil

	case AssignTask:
		if err := requireLiveTask(s); err != nil {
			return nil, err
		}
		if s.Status == TaskStatusDone {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "done tasks cannot be assigned")
		}
		if c.Assignee.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "assignee is required")
		}
		if c.Assignee == s.Assignee {
			return nil, nil
		}
		return []EventPayload{TaskAssigned{Assignee: c.Assignee}}, nil

	case UnassignTask:
		if err := requireLiveTask(s); err != nil {
			return nil, err
		}
		if s.Assignee.IsNil() {
			return nil, nil
		}
		return []EventPayload{TaskUnassigned{Previous: s.Assignee}}, nil

	case SetTaskDueDate:
		if err := requireLiveTask(s); err != nil {
			return nil, err
		}
		if s.Status == TaskStatusDone {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "done tasks cannot change due date")
		}
		return []EventPayload{TaskDueDateChanged{DueDate: c.DueDate}}, nil

	case RetireTask:
		if !s.Exists() {
			return nil, dErrors.New(dErrors.CodeNotFound, "task does not exist")
		}
		if s.Status == TaskStatusRetired {
			return nil, nil
		}
		return []EventPayload{TaskRetired{}}, nil

	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown task command %q", cmd.CommandKind())
	}
}

func requireLiveTask(s *TaskState) error {
	if !s.Exists() {
		return dErrors.New(dErrors.CodeNotFound, "task does not exist")
	}
	if s.Status == TaskStatusRetired {
		return dErrors.New(dErrors.CodeInvariantViolation, "task is retired")
	}
	return nil
}

func foldTask(s *TaskState, evt Event) *TaskState {
	switch p := evt.Payload.(type) {
	case TaskCreated:
		s.created = true
		s.ProjectID = p.ProjectID
		s.Title = p.Title
		s.DueDate = p.DueDate
		s.Status = TaskStatusTodo
	case TaskStatusChanged:
		s.Status = p.To
	case TaskReopened:
		s.Status = TaskStatusTodo
	case TaskAssigned:
		s.Assignee = p.Assignee
	case TaskUnassigned:
		s.Assignee = id.UserID{}
	case TaskDueDateChanged:
		s.DueDate = p.DueDate
	case TaskRetired:
		s.Status = TaskStatusRetired
	}
	s.version = evt.Seq
	return s
}
