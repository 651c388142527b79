// Package domain defines typed identifiers shared across the engine.
//
// Each aggregate and session identifier is a distinct UUID-backed type so
// the compiler rejects cross-type assignment. Parse functions enforce the
// trust-boundary invariant: IDs must be valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "taskstream/pkg/domain-errors"
)

type (
	// ProjectID identifies a Project aggregate.
	ProjectID uuid.UUID
	// TaskID identifies a Task aggregate.
	TaskID uuid.UUID
	// AssignmentID identifies an Assignment aggregate.
	AssignmentID uuid.UUID
	// UserID identifies an acting user. Supplied by the identity
	// collaborator; the engine treats it as opaque.
	UserID uuid.UUID
	// SessionID identifies a live subscriber session.
	SessionID uuid.UUID
)

func (id ProjectID) String() string    { return uuid.UUID(id).String() }
func (id TaskID) String() string       { return uuid.UUID(id).String() }
func (id AssignmentID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id SessionID) String() string    { return uuid.UUID(id).String() }

// MarshalText/UnmarshalText make the typed IDs render as canonical UUID
// strings in JSON payloads and map keys.
func (id ProjectID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id TaskID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id AssignmentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id SessionID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func (id *ProjectID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	*id = ProjectID(parsed)
	return err
}

func (id *TaskID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	*id = TaskID(parsed)
	return err
}

func (id *AssignmentID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	*id = AssignmentID(parsed)
	return err
}

func (id *UserID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	*id = UserID(parsed)
	return err
}

func (id *SessionID) UnmarshalText(text []byte) error {
	parsed, err := uuid.Parse(string(text))
	*id = SessionID(parsed)
	return err
}

func (id ProjectID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id TaskID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id AssignmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id is required", kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id is not a valid uuid", kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s id must not be the nil uuid", kind)
	}
	return parsed, nil
}

// ParseProjectID parses a project id from its string form.
func ParseProjectID(raw string) (ProjectID, error) {
	parsed, err := parseUUID(raw, "project")
	return ProjectID(parsed), err
}

// ParseTaskID parses a task id from its string form.
func ParseTaskID(raw string) (TaskID, error) {
	parsed, err := parseUUID(raw, "task")
	return TaskID(parsed), err
}

// ParseAssignmentID parses an assignment id from its string form.
func ParseAssignmentID(raw string) (AssignmentID, error) {
	parsed, err := parseUUID(raw, "assignment")
	return AssignmentID(parsed), err
}

// ParseUserID parses a user id from its string form.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user")
	return UserID(parsed), err
}

// ParseSessionID parses a session id from its string form.
func ParseSessionID(raw string) (SessionID, error) {
	parsed, err := parseUUID(raw, "session")
	return SessionID(parsed), err
}
