// Package aggregate defines the consistency boundaries of the engine:
// Project, Task and Assignment state machines, the commands that mutate
// them, and the events they emit.
//
// Decide functions are pure: given the current folded state and a command
// they return either event payloads or a coded rejection, and nothing else.
// Fold functions are the inverse: replaying an aggregate's events from
// sequence 0 deterministically reconstructs its state, which is how the
// engine recovers after restart. All dispatch is switch-based over closed
// variant sets; adding a kind without extending the switches is a compile
// or test failure, never silent misrouting.
package aggregate

import (
	"time"

	"github.com/google/uuid"

	id "taskstream/pkg/domain"
	dErrors "taskstream/pkg/domain-errors"
)

// Type discriminates aggregate kinds.
type Type string

const (
	TypeProject    Type = "project"
	TypeTask       Type = "task"
	TypeAssignment Type = "assignment"
)

// EventKind names a committed state transition.
type EventKind string

// CommandKind names an intent to mutate one aggregate.
type CommandKind string

// EventPayload is the typed body of a domain event. The set of
// implementations is closed; codec.go enumerates it for the wire.
type EventPayload interface {
	EventKind() EventKind
}

// Command is an intent to change one aggregate. The expected version
// travels in the engine envelope, not here; commands stay pure payloads.
type Command interface {
	CommandKind() CommandKind
	Aggregate() (Type, uuid.UUID)
}

// Event is an immutable fact describing a committed transition. Seq is the
// logical sequence number within the aggregate, assigned by the event log
// at append time; after the event commits, Seq is also the aggregate's
// version token.
type Event struct {
	AggregateType Type
	AggregateID   uuid.UUID
	Seq           uint64
	Kind          EventKind
	Actor         id.UserID
	OccurredAt    time.Time
	Payload       EventPayload
}

// State is the folded state of one aggregate.
type State interface {
	Type() Type
	// Version is the sequence of the last folded event; 0 means the
	// aggregate does not exist yet.
	Version() uint64
	Exists() bool
}

// NewState returns the empty (not yet created) state for an aggregate type.
func NewState(t Type, aggregateID uuid.UUID) State {
	switch t {
	case TypeProject:
		return &ProjectState{ID: id.ProjectID(aggregateID)}
	case TypeTask:
		return &TaskState{ID: id.TaskID(aggregateID)}
	case TypeAssignment:
		return &AssignmentState{ID: id.AssignmentID(aggregateID)}
	default:
		return nil
	}
}

// ParseType validates an aggregate type received from the wire.
func ParseType(raw string) (Type, error) {
	switch Type(raw) {
	case TypeProject, TypeTask, TypeAssignment:
		return Type(raw), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown aggregate type %q", raw)
	}
}

// Decide validates cmd against state and returns the payloads of the events
// the transition emits. It never mutates state.
func Decide(state State, cmd Command) ([]EventPayload, error) {
	cmdType, _ := cmd.Aggregate()
	if state.Type() != cmdType {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"command targets %s but aggregate is %s", cmdType, state.Type())
	}

	switch s := state.(type) {
	case *ProjectState:
		return decideProject(s, cmd)
	case *TaskState:
		return decideTask(s, cmd)
	case *AssignmentState:
		return decideAssignment(s, cmd)
	default:
		return nil, dErrors.Newf(dErrors.CodeInternal, "unhandled aggregate state %T", state)
	}
}

// Fold applies evt to state and returns the updated state. Applying an
// event at or below the current version is a no-op, which makes projection
// application idempotent keyed by (aggregate id, sequence).
func Fold(state State, evt Event) State {
	if evt.Seq != 0 && evt.Seq <= state.Version() {
		return state
	}

	switch s := state.(type) {
	case *ProjectState:
		return foldProject(s, evt)
	case *TaskState:
		return foldTask(s, evt)
	case *AssignmentState:
		return foldAssignment(s, evt)
	default:
		return state
	}
}

// Replay folds an ordered event slice into the empty state.
func Replay(t Type, aggregateID uuid.UUID, events []Event) State {
	state := NewState(t, aggregateID)
	for _, evt := range events {
		state = Fold(state, evt)
	}
	return state
}
