package httptransport

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"taskstream/internal/aggregate"
	"taskstream/internal/engine"
	id "taskstream/pkg/domain"
	dErrors "taskstream/pkg/domain-errors"
)

// commandRequest is the wire shape of a command submission. The command
// object carries a kind discriminator plus kind-specific fields; the target
// aggregate id always comes from the envelope.
type commandRequest struct {
	AggregateType   string          `json:"aggregateType"`
	AggregateID     uuid.UUID       `json:"aggregateId"`
	ExpectedVersion uint64          `json:"expectedVersion"`
	Command         json.RawMessage `json:"command"`
}

type taskCommandBody struct {
	Kind      string               `json:"kind"`
	Title     string               `json:"title"`
	ProjectID id.ProjectID         `json:"projectId"`
	Status    aggregate.TaskStatus `json:"status"`
	Assignee  id.UserID            `json:"assignee"`
	DueDate   *time.Time           `json:"dueDate"`
}

type projectCommandBody struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

type assignmentCommandBody struct {
	Kind     string    `json:"kind"`
	TaskID   id.TaskID `json:"taskId"`
	Assignee id.UserID `json:"assignee"`
}

func (req commandRequest) toCommand(actor id.UserID) (engine.Command, error) {
	aggType, err := aggregate.ParseType(req.AggregateType)
	if err != nil {
		return engine.Command{}, err
	}
	if req.AggregateID == uuid.Nil {
		return engine.Command{}, dErrors.New(dErrors.CodeInvalidInput, "aggregateId is required")
	}
	if len(req.Command) == 0 {
		return engine.Command{}, dErrors.New(dErrors.CodeInvalidInput, "command is required")
	}

	var payload aggregate.Command
	switch aggType {
	case aggregate.TypeTask:
		payload, err = req.taskCommand()
	case aggregate.TypeProject:
		payload, err = req.projectCommand()
	case aggregate.TypeAssignment:
		payload, err = req.assignmentCommand()
	}
	if err != nil {
		return engine.Command{}, err
	}

	return engine.Command{
		AggregateType:   aggType,
		AggregateID:     req.AggregateID,
		ExpectedVersion: req.ExpectedVersion,
		Actor:           actor,
		Payload:         payload,
	}, nil
}

func (req commandRequest) taskCommand() (aggregate.Command, error) {
	var body taskCommandBody
	if err := json.Unmarshal(req.Command, &body); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "malformed command body")
	}
	taskID := id.TaskID(req.AggregateID)

	switch aggregate.CommandKind(body.Kind) {
	case aggregate.CmdCreateTask:
		return aggregate.CreateTask{TaskID: taskID, ProjectID: body.ProjectID, Title: body.Title, DueDate: body.DueDate}, nil
	case aggregate.CmdSetTaskStatus:
		return aggregate.SetTaskStatus{TaskID: taskID, Status: body.Status}, nil
	case aggregate.CmdReopenTask:
		return aggregate.ReopenTask{TaskID: taskID}, nil
	case aggregate.CmdAssignTask:
		return aggregate.AssignTask{TaskID: taskID, Assignee: body.Assignee}, nil
	case aggregate.CmdUnassignTask:
		return aggregate.UnassignTask{TaskID: taskID}, nil
	case aggregate.CmdSetTaskDueDate:
		return aggregate.SetTaskDueDate{TaskID: taskID, DueDate: body.DueDate}, nil
	case aggregate.CmdRetireTask:
		return aggregate.RetireTask{TaskID: taskID}, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown task command %q", body.Kind)
	}
}

func (req commandRequest) projectCommand() (aggregate.Command, error) {
	var body projectCommandBody
	if err := json.Unmarshal(req.Command, &body); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "malformed command body")
	}
	projectID := id.ProjectID(req.AggregateID)

	switch aggregate.CommandKind(body.Kind) {
	case aggregate.CmdCreateProject:
		return aggregate.CreateProject{ProjectID: projectID, Name: body.Name}, nil
	case aggregate.CmdRenameProject:
		return aggregate.RenameProject{ProjectID: projectID, Name: body.Name}, nil
	case aggregate.CmdArchiveProject:
		return aggregate.ArchiveProject{ProjectID: projectID}, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown project command %q", body.Kind)
	}
}

func (req commandRequest) assignmentCommand() (aggregate.Command, error) {
	var body assignmentCommandBody
	if err := json.Unmarshal(req.Command, &body); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "malformed command body")
	}
	assignmentID := id.AssignmentID(req.AggregateID)

	switch aggregate.CommandKind(body.Kind) {
	case aggregate.CmdCreateAssignment:
		return aggregate.CreateAssignment{AssignmentID: assignmentID, TaskID: body.TaskID, Assignee: body.Assignee}, nil
	case aggregate.CmdAcceptAssignment:
		return aggregate.AcceptAssignment{AssignmentID: assignmentID}, nil
	case aggregate.CmdDeclineAssignment:
		return aggregate.DeclineAssignment{AssignmentID: assignmentID}, nil
	case aggregate.CmdRevokeAssignment:
		return aggregate.RevokeAssignment{AssignmentID: assignmentID}, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown assignment command %q", body.Kind)
	}
}
