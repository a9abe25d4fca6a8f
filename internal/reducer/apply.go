package reducer

import "github.com/opencode-ai/agentrund/pkg/types"

// ApplyEvent folds one persisted event into state (§4.2). It is total: every
// EventKind this build knows about has a case. It folds whatever it is given,
// including events after SessionDeleted; it is Reduce that refuses new
// messages once Deleted is set.
// Replaying the empty state over a session's full event sequence must
// reproduce the live actor's state bit for bit (§8 property 1); this
// function is the only code path both use.
func ApplyEvent(s AppState, ev types.Event) AppState {
	switch p := ev.Payload.(type) {
	case types.SessionCreatedPayload:
		return applySessionCreated(s, p)
	case types.MessageAppendedPayload:
		return applyMessageAppended(s, p)
	case types.ToolCallStartedPayload:
		return applyToolCallStarted(s, p)
	case types.ToolCallCompletedPayload:
		return applyToolCallCompleted(s, p, ev.Timestamp)
	case types.ToolCallFailedPayload:
		return applyToolCallFailed(s, p, ev.Timestamp)
	case types.ApprovalDecidedPayload:
		return applyApprovalDecided(s, p)
	case types.OperationStartedPayload:
		return applyOperationStarted(s, p)
	case types.OperationCompletedPayload:
		return applyOperationCompleted(s, p)
	case types.OperationCancelledPayload:
		return applyOperationCancelled(s, p)
	case types.ModelChangedPayload:
		return applyModelChanged(s, p)
	case types.SessionDeletedPayload:
		return applySessionDeleted(s, p)
	case types.ApprovalRequestedPayload, types.CompactionProducedPayload:
		// Observational events: they don't change reducer-tracked state
		// beyond what ToolCallStarted/MessageAppended already capture.
		// ApprovalRequested exists so replay and subscribers can see that a
		// request was made even if the session is torn down before a
		// decision arrives; CompactionProduced is informational alongside
		// the MessageAppended(summary) it always accompanies.
		return s
	default:
		// Unknown payload that nonetheless decoded (future additive kind
		// read by an old binary from the *middle* of a log): per §6 this is
		// only safe at the tail, and decodePayload already rejects it
		// there. If it reached here despite that, treat it as a no-op
		// rather than letting it corrupt tracked state.
		return s
	}
}

func applySessionCreated(s AppState, p types.SessionCreatedPayload) AppState {
	out := New()
	out.Session = p.Session
	return out
}

func applyMessageAppended(s AppState, p types.MessageAppendedPayload) AppState {
	out := s.clone()
	msg := p.Message
	out.Messages[msg.ID] = msg
	if msg.ParentID == nil {
		out.Roots = append(out.Roots, msg.ID)
	} else {
		out.Children[*msg.ParentID] = append(out.Children[*msg.ParentID], msg.ID)
	}
	out.Tip = msg.ID
	return out
}

func applyToolCallStarted(s AppState, p types.ToolCallStartedPayload) AppState {
	out := s.clone()
	out.PendingToolCalls[p.ToolCall.ID] = PendingToolCall{
		OpID:             p.ToolCall.OpID,
		Name:             p.ToolCall.Name,
		Parameters:       p.ToolCall.Parameters,
		StartedAt:        p.ToolCall.StartedAt,
		AwaitingApproval: p.ToolCall.State == types.ToolCallPending,
		RequestID:        p.ToolCall.RequestID,
	}
	return out
}

func toolResultMessage(id types.MessageID, parent types.MessageID, callID types.ToolCallID, ts types.Timestamp, result *types.ToolResult, toolErr *types.ToolError) types.Message {
	return types.Message{
		ID:         id,
		ParentID:   &parent,
		Role:       types.RoleTool,
		Created:    ts,
		ToolCallID: callID,
		Result:     result,
		ResultErr:  toolErr,
	}
}

func applyToolCallCompleted(s AppState, p types.ToolCallCompletedPayload, ts types.Timestamp) AppState {
	out := s.clone()
	delete(out.PendingToolCalls, p.ToolCallID)
	parent := out.Tip
	result := p.Result
	out.Messages[p.MessageID] = toolResultMessage(p.MessageID, parent, p.ToolCallID, ts, &result, nil)
	out.Children[parent] = append(out.Children[parent], p.MessageID)
	out.Tip = p.MessageID
	return out
}

func applyToolCallFailed(s AppState, p types.ToolCallFailedPayload, ts types.Timestamp) AppState {
	out := s.clone()
	delete(out.PendingToolCalls, p.ToolCallID)
	parent := out.Tip
	toolErr := p.Error
	out.Messages[p.MessageID] = toolResultMessage(p.MessageID, parent, p.ToolCallID, ts, nil, &toolErr)
	out.Children[parent] = append(out.Children[parent], p.MessageID)
	out.Tip = p.MessageID
	return out
}

func applyApprovalDecided(s AppState, p types.ApprovalDecidedPayload) AppState {
	if p.Decision.Action != types.ApprovalAlways {
		return s
	}
	out := s.clone()
	out.Approval = out.Approval.Remember(p.Decision.Scope)
	return out
}

func applyOperationStarted(s AppState, p types.OperationStartedPayload) AppState {
	out := s.clone()
	out.Ops[p.OpID] = types.Operation{
		ID:        p.OpID,
		SessionID: s.Session.ID,
		State:     types.OpRunning,
		StartedAt: p.StartedAt,
	}
	return out
}

func applyOperationCompleted(s AppState, p types.OperationCompletedPayload) AppState {
	out := s.clone()
	op, ok := out.Ops[p.OpID]
	if !ok {
		return out
	}
	if p.Error != "" {
		op.State = types.OpFailed
		op.Error = p.Error
	} else {
		op.State = types.OpDone
	}
	out.Ops[p.OpID] = op
	return out
}

func applyOperationCancelled(s AppState, p types.OperationCancelledPayload) AppState {
	out := s.clone()
	op, ok := out.Ops[p.OpID]
	if !ok {
		op = types.Operation{ID: p.OpID, SessionID: s.Session.ID}
	}
	op.State = types.OpCancelled
	op.Pending = p.PendingToolIDs
	out.Ops[p.OpID] = op
	return out
}

func applyModelChanged(s AppState, p types.ModelChangedPayload) AppState {
	out := s.clone()
	out.Session.Default = p.Model
	return out
}

func applySessionDeleted(s AppState, p types.SessionDeletedPayload) AppState {
	out := s.clone()
	out.Deleted = true
	return out
}
