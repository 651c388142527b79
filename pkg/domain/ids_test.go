package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "taskstream/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseTaskID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseTaskID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseProjectID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseTaskID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, TaskID(valid), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	taskID := TaskID(uuid.New())
	projectID := ProjectID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ TaskID = projectID   // compile error
	// var _ ProjectID = taskID   // compile error

	assert.NotEqual(t, uuid.UUID(taskID), uuid.UUID(projectID))
}

func TestIsNil(t *testing.T) {
	assert.True(t, TaskID(uuid.Nil).IsNil())
	assert.False(t, TaskID(uuid.New()).IsNil())
}
