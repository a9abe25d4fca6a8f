package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/agentrund/pkg/types"
)

func TestStepperHappyPathNoToolCalls(t *testing.T) {
	st := NewStepper()
	opID := types.OpID("op1")

	require.NoError(t, st.Start(opID))
	assert.Equal(t, AwaitingLlm, st.State(opID))

	require.NoError(t, st.Delta(opID))
	assert.Equal(t, StreamingAssistant, st.State(opID))

	require.NoError(t, st.Completed(opID, false))
	assert.Equal(t, Done, st.State(opID))
}

func TestStepperToolCallLoop(t *testing.T) {
	st := NewStepper()
	opID := types.OpID("op1")

	require.NoError(t, st.Start(opID))
	require.NoError(t, st.Completed(opID, true))
	assert.Equal(t, DispatchingTools, st.State(opID))

	require.NoError(t, st.ToolsDispatched(opID))
	assert.Equal(t, AwaitingToolResults, st.State(opID))

	require.NoError(t, st.ToolResultReceived(opID, false))
	assert.Equal(t, AwaitingToolResults, st.State(opID))

	require.NoError(t, st.ToolResultReceived(opID, true))
	assert.Equal(t, AwaitingLlm, st.State(opID), "all tool results resolved loops back to the provider")
}

func TestStepperRejectsIllegalTransition(t *testing.T) {
	st := NewStepper()
	opID := types.OpID("op1")

	err := st.ToolsDispatched(opID)
	require.Error(t, err)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, Idle, terr.From)
	assert.Equal(t, DispatchingTools, terr.To)
}

func TestStepperCancellationEndsAnyStep(t *testing.T) {
	st := NewStepper()
	opID := types.OpID("op1")

	require.NoError(t, st.Start(opID))
	require.NoError(t, st.Delta(opID))
	st.Cancelled(opID)
	assert.Equal(t, Done, st.State(opID))
}

func TestStepperForgetResetsToIdle(t *testing.T) {
	st := NewStepper()
	opID := types.OpID("op1")
	require.NoError(t, st.Start(opID))
	st.Forget(opID)
	assert.Equal(t, Idle, st.State(opID))
}

func TestShouldCompact(t *testing.T) {
	assert.False(t, ShouldCompact(100, 1000))
	assert.True(t, ShouldCompact(750, 1000))
	assert.False(t, ShouldCompact(100, 0))
}

func TestMessagesToCompactKeepsMinimum(t *testing.T) {
	var msgs []types.Message
	for i := 0; i < 3; i++ {
		msgs = append(msgs, types.Message{ID: types.MessageID("m")})
	}
	toCompact, toKeep := MessagesToCompact(msgs)
	assert.Nil(t, toCompact)
	assert.Len(t, toKeep, 3)

	msgs = nil
	for i := 0; i < 10; i++ {
		msgs = append(msgs, types.Message{ID: types.MessageID("m")})
	}
	toCompact, toKeep = MessagesToCompact(msgs)
	assert.Len(t, toCompact, 6)
	assert.Len(t, toKeep, DefaultMinMessagesToKeep)
}
