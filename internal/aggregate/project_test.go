package aggregate

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "taskstream/pkg/domain"
	dErrors "taskstream/pkg/domain-errors"
)

func activeProject(t *testing.T, projectID id.ProjectID, extra ...EventPayload) *ProjectState {
	t.Helper()
	payloads := append([]EventPayload{ProjectCreated{Name: "launch"}}, extra...)
	events := make([]Event, 0, len(payloads))
	for i, p := range payloads {
		events = append(events, Event{
			AggregateType: TypeProject,
			AggregateID:   uuid.UUID(projectID),
			Seq:           uint64(i + 1),
			Kind:          p.EventKind(),
			OccurredAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			Payload:       p,
		})
	}
	return Replay(TypeProject, uuid.UUID(projectID), events).(*ProjectState)
}

func TestDecideProject(t *testing.T) {
	projectID := id.ProjectID(uuid.New())

	t.Run("create requires a name", func(t *testing.T) {
		empty := NewState(TypeProject, uuid.UUID(projectID))
		_, err := Decide(empty, CreateProject{ProjectID: projectID, Name: " "})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		payloads, err := Decide(empty, CreateProject{ProjectID: projectID, Name: "launch"})
		require.NoError(t, err)
		require.Len(t, payloads, 1)
		assert.Equal(t, ProjectCreated{Name: "launch"}, payloads[0])
	})

	t.Run("rename to same name is a no-op", func(t *testing.T) {
		state := activeProject(t, projectID)
		payloads, err := Decide(state, RenameProject{ProjectID: projectID, Name: "launch"})
		require.NoError(t, err)
		assert.Empty(t, payloads)
	})

	t.Run("archive is terminal", func(t *testing.T) {
		state := activeProject(t, projectID, ProjectArchived{})
		_, err := Decide(state, RenameProject{ProjectID: projectID, Name: "relaunch"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

		_, err = Decide(state, ArchiveProject{ProjectID: projectID})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("commands on missing project report not found", func(t *testing.T) {
		empty := NewState(TypeProject, uuid.UUID(projectID))
		_, err := Decide(empty, ArchiveProject{ProjectID: projectID})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestFoldProject(t *testing.T) {
	projectID := id.ProjectID(uuid.New())
	state := activeProject(t, projectID, ProjectRenamed{Name: "relaunch"}, ProjectArchived{})

	assert.Equal(t, "relaunch", state.Name)
	assert.Equal(t, ProjectStatusArchived, state.Status)
	assert.Equal(t, uint64(3), state.Version())
	assert.True(t, state.Exists())
}
