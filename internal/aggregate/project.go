package aggregate

import (
	"strings"

	"github.com/google/uuid"

	id "taskstream/pkg/domain"
	dErrors "taskstream/pkg/domain-errors"
)

// ProjectStatus enumerates the project state machine.
type ProjectStatus string

const (
	ProjectStatusActive ProjectStatus = "active"
	// ProjectStatusArchived is terminal; archived projects are retained
	// because their tasks' events reference them.
	ProjectStatusArchived ProjectStatus = "archived"
)

// ProjectState is the folded state of a Project aggregate.
type ProjectState struct {
	ID     id.ProjectID
	Name   string
	Status ProjectStatus

	version uint64
	created bool
}

func (s *ProjectState) Type() Type      { return TypeProject }
func (s *ProjectState) Version() uint64 { return s.version }
func (s *ProjectState) Exists() bool    { return s.created }

// Project command kinds.
const (
	CmdCreateProject  CommandKind = "create_project"
	CmdRenameProject  CommandKind = "rename_project"
	CmdArchiveProject CommandKind = "archive_project"
)

// Project event kinds.
const (
	EventProjectCreated  EventKind = "project_created"
	EventProjectRenamed  EventKind = "project_renamed"
	EventProjectArchived EventKind = "project_archived"
)

type CreateProject struct {
	ProjectID id.ProjectID
	Name      string
}

func (c CreateProject) CommandKind() CommandKind     { return CmdCreateProject }
func (c CreateProject) Aggregate() (Type, uuid.UUID) { return TypeProject, uuid.UUID(c.ProjectID) }

type RenameProject struct {
	ProjectID id.ProjectID
	Name      string
}

func (c RenameProject) CommandKind() CommandKind     { return CmdRenameProject }
func (c RenameProject) Aggregate() (Type, uuid.UUID) { return TypeProject, uuid.UUID(c.ProjectID) }

// ArchiveProject soft-retires a project. The open-task rule is enforced by
// the command service against the task projection before dispatch, because
// tasks live in their own consistency boundaries.
type ArchiveProject struct {
	ProjectID id.ProjectID
}

func (c ArchiveProject) CommandKind() CommandKind     { return CmdArchiveProject }
func (c ArchiveProject) Aggregate() (Type, uuid.UUID) { return TypeProject, uuid.UUID(c.ProjectID) }

// Project event payloads.

type ProjectCreated struct {
	Name string `json:"name"`
}

func (ProjectCreated) EventKind() EventKind { return EventProjectCreated }

type ProjectRenamed struct {
	Name string `json:"name"`
}

func (ProjectRenamed) EventKind() EventKind { return EventProjectRenamed }

type ProjectArchived struct{}

func (ProjectArchived) EventKind() EventKind { return EventProjectArchived }

func decideProject(s *ProjectState, cmd Command) ([]EventPayload, error) {
	switch c := cmd.(type) {
	case CreateProject:
		if s.Exists() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "project already exists")
		}
		if strings.TrimSpace(c.Name) == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "project name is required")
		}
		return []EventPayload{ProjectCreated{Name: c.Name}}, nil

	case RenameProject:
		if err := requireActiveProject(s); err != nil {
			return nil, err
		}
		if strings.TrimSpace(c.Name) == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "project name is required")
		}
		if c.Name == s.Name {
			return nil, nil
		}
		return []EventPayload{ProjectRenamed{Name: c.Name}}, nil

	case ArchiveProject:
		if err := requireActiveProject(s); err != nil {
			return nil, err
		}
		return []EventPayload{ProjectArchived{}}, nil

	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown project command %q", cmd.CommandKind())
	}
}

func requireActiveProject(s *ProjectState) error {
	if !s.Exists() {
		return dErrors.New(dErrors.CodeNotFound, "project does not exist")
	}
	if s.Status == ProjectStatusArchived {
		return dErrors.New(dErrors.CodeInvariantViolation, "project is archived")
	}
	return nil
}

func foldProject(s *ProjectState, evt Event) *ProjectState {
	switch p := evt.Payload.(type) {
	case ProjectCreated:
		s.created = true
		s.Name = p.Name
		s.Status = ProjectStatusActive
	case ProjectRenamed:
		s.Name = p.Name
	case ProjectArchived:
		s.Status = ProjectStatusArchived
	}
	s.version = evt.Seq
	return s
}
