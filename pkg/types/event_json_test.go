package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSONRoundTrip(t *testing.T) {
	orig := Event{
		SessionID:      NewSessionID(),
		SequenceNumber: 3,
		Timestamp:      1234,
		Kind:           EventToolCallFailed,
		Payload: ToolCallFailedPayload{
			ToolCallID: NewToolCallID(),
			Error:      ToolError{Kind: ToolErrTimeout, Message: "boom"},
		},
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, orig.SessionID, decoded.SessionID)
	assert.Equal(t, orig.SequenceNumber, decoded.SequenceNumber)
	assert.Equal(t, orig.Kind, decoded.Kind)
	payload, ok := decoded.Payload.(ToolCallFailedPayload)
	require.True(t, ok)
	assert.Equal(t, ToolErrTimeout, payload.Error.Kind)
}

func TestEventJSONUnknownKind(t *testing.T) {
	raw := []byte(`{"sessionID":"s1","sequenceNumber":1,"timestamp":1,"kind":"future_event","payload":{}}`)
	var decoded Event
	err := json.Unmarshal(raw, &decoded)
	require.Error(t, err)
	var unkErr *UnknownEventKindError
	require.ErrorAs(t, err, &unkErr)
	assert.Equal(t, EventKind("future_event"), unkErr.Kind)
}

func TestApprovalMemoryAllows(t *testing.T) {
	var mem ApprovalMemory
	assert.False(t, mem.Allows("bash", "git push"))

	mem = mem.Remember(ApprovalScope{BashPattern: "git "})
	assert.True(t, mem.Allows("bash", "git push"))
	assert.False(t, mem.Allows("bash", "rm -rf /"))

	mem = mem.Remember(ApprovalScope{ToolName: "ls"})
	assert.True(t, mem.Allows("ls", ""))
}

func TestToolFilterAllows(t *testing.T) {
	all := ToolFilter{Kind: ToolFilterAll}
	assert.True(t, all.Allows("bash"))

	inc := ToolFilter{Kind: ToolFilterInclude, Names: []string{"read"}}
	assert.True(t, inc.Allows("read"))
	assert.False(t, inc.Allows("bash"))

	exc := ToolFilter{Kind: ToolFilterExclude, Names: []string{"bash"}}
	assert.False(t, exc.Allows("bash"))
	assert.True(t, exc.Allows("read"))
}
