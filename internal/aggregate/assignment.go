package aggregate

import (
	"github.com/google/uuid"

	id "taskstream/pkg/domain"
	dErrors "taskstream/pkg/domain-errors"
)

// AssignmentStatus enumerates the assignment state machine.
type AssignmentStatus string

const (
	AssignmentStatusPending  AssignmentStatus = "pending"
	AssignmentStatusAccepted AssignmentStatus = "accepted"
	AssignmentStatusDeclined AssignmentStatus = "declined"
	// AssignmentStatusRevoked is terminal.
	AssignmentStatusRevoked AssignmentStatus = "revoked"
)

// AssignmentState is the folded state of an Assignment aggregate: a binding
// between a task and an assignee with its own acceptance lifecycle.
type AssignmentState struct {
	ID       id.AssignmentID
	TaskID   id.TaskID
	Assignee id.UserID
	Status   AssignmentStatus

	version uint64
	created bool
}

func (s *AssignmentState) Type() Type      { return TypeAssignment }
func (s *AssignmentState) Version() uint64 { return s.version }
func (s *AssignmentState) Exists() bool    { return s.created }

// Assignment command kinds.
const (
	CmdCreateAssignment  CommandKind = "create_assignment"
	CmdAcceptAssignment  CommandKind = "accept_assignment"
	CmdDeclineAssignment CommandKind = "decline_assignment"
	CmdRevokeAssignment  CommandKind = "revoke_assignment"
)

// Assignment event kinds.
const (
	EventAssignmentCreated  EventKind = "assignment_created"
	EventAssignmentAccepted EventKind = "assignment_accepted"
	EventAssignmentDeclined EventKind = "assignment_declined"
	EventAssignmentRevoked  EventKind = "assignment_revoked"
)

type CreateAssignment struct {
	AssignmentID id.AssignmentID
	TaskID       id.TaskID
	Assignee     id.UserID
}

func (c CreateAssignment) CommandKind() CommandKind { return CmdCreateAssignment }
func (c CreateAssignment) Aggregate() (Type, uuid.UUID) {
	return TypeAssignment, uuid.UUID(c.AssignmentID)
}

type AcceptAssignment struct {
	AssignmentID id.AssignmentID
}

func (c AcceptAssignment) CommandKind() CommandKind { return CmdAcceptAssignment }
func (c AcceptAssignment) Aggregate() (Type, uuid.UUID) {
	return TypeAssignment, uuid.UUID(c.AssignmentID)
}

type DeclineAssignment struct {
	AssignmentID id.AssignmentID
}

func (c DeclineAssignment) CommandKind() CommandKind { return CmdDeclineAssignment }
func (c DeclineAssignment) Aggregate() (Type, uuid.UUID) {
	return TypeAssignment, uuid.UUID(c.AssignmentID)
}

type RevokeAssignment struct {
	AssignmentID id.AssignmentID
}

func (c RevokeAssignment) CommandKind() CommandKind { return CmdRevokeAssignment }
func (c RevokeAssignment) Aggregate() (Type, uuid.UUID) {
	return TypeAssignment, uuid.UUID(c.AssignmentID)
}

// Assignment event payloads.

type AssignmentCreated struct {
	TaskID   id.TaskID `json:"task_id"`
	Assignee id.UserID `json:"assignee"`
}

func (AssignmentCreated) EventKind() EventKind { return EventAssignmentCreated }

type AssignmentAccepted struct{}

func (AssignmentAccepted) EventKind() EventKind { return EventAssignmentAccepted }

type AssignmentDeclined struct{}

func (AssignmentDeclined) EventKind() EventKind { return EventAssignmentDeclined }

type AssignmentRevoked struct{}

func (AssignmentRevoked) EventKind() EventKind { return EventAssignmentRevoked }

func decideAssignment(s *AssignmentState, cmd Command) ([]EventPayload, error) {
	switch c := cmd.(type) {
	case CreateAssignment:
		if s.Exists() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "assignment already exists")
		}
		if c.TaskID.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "assignment requires a task")
		}
		if c.Assignee.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "assignment requires an assignee")
		}
		return []EventPayload{AssignmentCreated{TaskID: c.TaskID, Assignee: c.Assignee}}, nil

	case AcceptAssignment:
		if err := requirePendingAssignment(s); err != nil {
			return nil, err
		}
		return []EventPayload{AssignmentAccepted{}}, nil

	case DeclineAssignment:
		if err := requirePendingAssignment(s); err != nil {
			return nil, err
		}
		return []EventPayload{AssignmentDeclined{}}, nil

	case RevokeAssignment:
		if !s.Exists() {
			return nil, dErrors.New(dErrors.CodeNotFound, "assignment does not exist")
		}
		switch s.Status {
		case AssignmentStatusPending, AssignmentStatusAccepted:
			return []EventPayload{AssignmentRevoked{}}, nil
		default:
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
				"%s assignments cannot be revoked", s.Status)
		}

	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown assignment command %q", cmd.CommandKind())
	}
}

func requirePendingAssignment(s *AssignmentState) error {
	if !s.Exists() {
		return dErrors.New(dErrors.CodeNotFound, "assignment does not exist")
	}
	if s.Status != AssignmentStatusPending {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"assignment is %s, not pending", s.Status)
	}
	return nil
}

func foldAssignment(s *AssignmentState, evt Event) *AssignmentState {
	switch p := evt.Payload.(type) {
	case AssignmentCreated:
		s.created = true
		s.TaskID = p.TaskID
		s.Assignee = p.Assignee
		s.Status = AssignmentStatusPending
	case AssignmentAccepted:
		s.Status = AssignmentStatusAccepted
	case AssignmentDeclined:
		s.Status = AssignmentStatusDeclined
	case AssignmentRevoked:
		s.Status = AssignmentStatusRevoked
	}
	s.version = evt.Seq
	return s
}
