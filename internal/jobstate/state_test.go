package jobstate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition_ValidMoves(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"PENDING to STAGED", Pending, Staged},
		{"PENDING to CANCELLED", Pending, Cancelled},
		{"STAGED to STARTED", Staged, Started},
		{"STAGED to UNSTAGED", Staged, Unstaged},
		{"STAGED to CANCELLED", Staged, Cancelled},
		{"STARTED to SUCCEEDED", Started, Succeeded},
		{"STARTED to FAILED", Started, Failed},
		{"STARTED to CANCELLED", Started, Cancelled},
		{"SUCCEEDED to ARCHIVED", Succeeded, Archived},
		{"SUCCEEDED to CANCELLED", Succeeded, Cancelled},
		{"ARCHIVED to ANNOTATED", Archived, Annotated},
		{"ARCHIVED to CANCELLED", Archived, Cancelled},
		{"ANNOTATED to UNSTAGED", Annotated, Unstaged},
		{"ANNOTATED to CANCELLED", Annotated, Cancelled},
		{"UNSTAGED to COMPLETED", Unstaged, Completed},
		{"UNSTAGED to CANCELLED", Unstaged, Cancelled},
		{"FAILED to CANCELLED", Failed, Cancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, ValidateTransition(tt.from, tt.to))
		})
	}
}

func TestValidateTransition_InvalidMoves(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"COMPLETED is terminal", Completed, Staged},
		{"CANCELLED is terminal", Cancelled, Staged},
		{"PENDING cannot skip to STARTED", Pending, Started},
		{"STAGED cannot skip to SUCCEEDED", Staged, Succeeded},
		{"no backward move STARTED to STAGED", Started, Staged},
		{"FAILED cannot resume to STARTED", Failed, Started},
		{"self transition not permitted", Pending, Pending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestValidateTransition_UnknownState(t *testing.T) {
	err := ValidateTransition(State("BOGUS"), Staged)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownState))

	err = ValidateTransition(Pending, State("BOGUS"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownState))
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, Completed.Terminal())
	assert.True(t, Cancelled.Terminal())
	assert.False(t, Failed.Terminal(), "FAILED permits one further move to CANCELLED")
	assert.False(t, Pending.Terminal())
}

func TestEndStates(t *testing.T) {
	ontRunData, err := EndStates(ONTRunData)
	require.NoError(t, err)
	assert.Equal(t, map[State]bool{Completed: true, Cancelled: true}, ontRunData)

	ontMeta, err := EndStates(ONTRunMetadataUpdate)
	require.NoError(t, err)
	assert.Equal(t, map[State]bool{Cancelled: true}, ontMeta)

	_, err = EndStates(WorkKind("bogus"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownWorkKind)
}

func TestValidWorkKind(t *testing.T) {
	assert.True(t, ValidWorkKind(ONTRunData))
	assert.True(t, ValidWorkKind(ONTRunMetadataUpdate))
	assert.False(t, ValidWorkKind(WorkKind("ONTSomethingElse")))
}
