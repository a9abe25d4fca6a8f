package reducer

import (
	"fmt"
	"sort"

	"github.com/opencode-ai/agentrund/internal/effect"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// Reduce is the other half of §4.2: given the current state and one client-
// or interpreter-originated Action, it decides what happened — the events
// to persist, in order, and the effects the interpreter should carry out
// once they're durable. Like ApplyEvent, it touches no clock and generates
// no identifiers; everything it needs is already on the Action.
//
// The returned AppState already has the returned events folded in: Reduce
// runs each one through ApplyEvent itself, so its effects (CallLlm needs the
// post-event Tip) see the same state the caller adopts after persisting the
// events, and replaying those events later reproduces it.
//
// A returned error means the action was rejected outright: no event, no
// effect, surfaced to the client as a validation failure (§7).
func Reduce(s AppState, a effect.Action) (AppState, []types.EventPayload, []effect.Effect, error) {
	switch act := a.(type) {
	case effect.SendMessage:
		return reduceSendMessage(s, act)
	case effect.EditMessage:
		return reduceEditMessage(s, act)
	case effect.CancelOperation:
		return reduceCancelOperation(s, act)
	case effect.ApprovalReceived:
		return reduceApprovalReceived(s, act)
	case effect.LlmCompleted:
		return reduceLlmCompleted(s, act)
	case effect.LlmFailed:
		return reduceLlmFailed(s, act)
	case effect.ToolCompleted:
		return reduceToolOutcome(s, act.OpID, act.ToolCallID,
			types.ToolCallCompletedPayload{ToolCallID: act.ToolCallID, MessageID: act.MessageID, Result: act.Result})
	case effect.ToolFailed:
		return reduceToolOutcome(s, act.OpID, act.ToolCallID,
			types.ToolCallFailedPayload{ToolCallID: act.ToolCallID, MessageID: act.MessageID, Error: act.Error})
	case effect.TimeoutFired:
		return reduceLlmFailed(s, effect.LlmFailed{OpID: act.OpID, Message: "operation timed out"})
	case effect.CompactionCompleted:
		return reduceCompactionCompleted(s, act)
	default:
		return s, nil, nil, fmt.Errorf("reducer: unhandled action %T", a)
	}
}

func parentOf(leaf types.MessageID) *types.MessageID {
	if leaf == "" {
		return nil
	}
	id := leaf
	return &id
}

func reduceSendMessage(s AppState, act effect.SendMessage) (AppState, []types.EventPayload, []effect.Effect, error) {
	if s.Deleted {
		return s, nil, nil, types.NewDomainError(types.ErrorValidation, "session is deleted", nil)
	}
	msg := types.Message{
		ID:       act.MessageID,
		ParentID: parentOf(s.Tip),
		Role:     types.RoleUser,
		Created:  act.Now,
		Content:  act.Content,
	}
	events := []types.EventPayload{
		types.MessageAppendedPayload{Message: msg},
		types.OperationStartedPayload{OpID: act.OpID, StartedAt: act.Now},
	}
	next := ApplyEvent(s, types.Event{Payload: events[0]})
	next = ApplyEvent(next, types.Event{Payload: events[1]})
	effects := []effect.Effect{callLlmEffect(next, act.OpID)}
	return next, events, effects, nil
}

func reduceEditMessage(s AppState, act effect.EditMessage) (AppState, []types.EventPayload, []effect.Effect, error) {
	if s.Deleted {
		return s, nil, nil, types.NewDomainError(types.ErrorValidation, "session is deleted", nil)
	}
	edited, ok := s.Messages[act.EditOf]
	if !ok {
		return s, nil, nil, types.NewDomainError(types.ErrorValidation, fmt.Sprintf("unknown message %q", act.EditOf), nil)
	}
	msg := types.Message{
		ID:       act.NewMessageID,
		ParentID: edited.ParentID,
		Role:     types.RoleUser,
		Created:  act.Now,
		Content:  act.Content,
	}
	events := []types.EventPayload{
		types.MessageAppendedPayload{Message: msg},
		types.OperationStartedPayload{OpID: act.OpID, StartedAt: act.Now},
	}
	next := ApplyEvent(s, types.Event{Payload: events[0]})
	next = ApplyEvent(next, types.Event{Payload: events[1]})
	effects := []effect.Effect{callLlmEffect(next, act.OpID)}
	return next, events, effects, nil
}

func reduceCancelOperation(s AppState, act effect.CancelOperation) (AppState, []types.EventPayload, []effect.Effect, error) {
	op, ok := s.Ops[act.OpID]
	if !ok || op.State != types.OpRunning {
		// Stale or already-terminal cancel: drop silently, matching the
		// out-of-order-reply handling used for approvals and tool outcomes.
		return s, nil, nil, nil
	}
	ids := make([]types.ToolCallID, 0, len(act.Failures))
	for _, f := range act.Failures {
		ids = append(ids, f.ToolCallID)
	}
	events := make([]types.EventPayload, 0, 1+len(act.Failures))
	events = append(events, types.OperationCancelledPayload{OpID: act.OpID, PendingToolIDs: ids})
	for _, f := range act.Failures {
		events = append(events, types.ToolCallFailedPayload{
			ToolCallID: f.ToolCallID,
			MessageID:  f.MessageID,
			Error:      types.ToolError{Kind: types.ToolErrCancelled, Message: "operation cancelled"},
		})
	}
	next := s
	for _, ev := range events {
		next = ApplyEvent(next, types.Event{Payload: ev, Timestamp: act.Now})
	}
	return next, events, nil, nil
}

func reduceApprovalReceived(s AppState, act effect.ApprovalReceived) (AppState, []types.EventPayload, []effect.Effect, error) {
	d := act.Decision
	pending, ok := s.PendingToolCalls[d.ToolCallID]
	if !ok || !pending.AwaitingApproval || pending.RequestID != d.RequestID {
		// Stale reply: the tool call already resolved, was cancelled, or
		// this RequestID no longer matches (a newer request superseded
		// it). §5 requires dropping stale replies rather than erroring.
		return s, nil, nil, nil
	}

	events := []types.EventPayload{types.ApprovalDecidedPayload{Decision: d}}
	next := ApplyEvent(s, types.Event{Payload: events[0]})

	if d.Action == types.ApprovalDeny {
		failed := types.ToolCallFailedPayload{
			ToolCallID: d.ToolCallID,
			MessageID:  act.MessageID,
			Error:      types.ToolError{Kind: types.ToolErrDeniedByUser, Message: "denied by user"},
		}
		events = append(events, failed)
		next = ApplyEvent(next, types.Event{Payload: failed, Timestamp: act.Now})
		return next, events, continuationEffects(next, pending.OpID), nil
	}

	runTool := effect.RunTool{
		OpID:       pending.OpID,
		ToolCallID: d.ToolCallID,
		Name:       pending.Name,
		Parameters: pending.Parameters,
	}
	return next, events, []effect.Effect{runTool}, nil
}

func reduceLlmCompleted(s AppState, act effect.LlmCompleted) (AppState, []types.EventPayload, []effect.Effect, error) {
	seen := make(map[types.ToolCallID]bool, len(act.ToolCalls))
	for _, tc := range act.ToolCalls {
		if seen[tc.ToolCallID] {
			return s, nil, nil, types.NewDomainError(types.ErrorValidation,
				fmt.Sprintf("duplicate tool call id %q in one assistant message", tc.ToolCallID), nil)
		}
		seen[tc.ToolCallID] = true
	}

	msg := types.Message{
		ID:       act.MessageID,
		ParentID: parentOf(s.Tip),
		Role:     types.RoleAssistant,
		Created:  act.Now,
		Content:  act.Content,
		Model:    act.Model,
		Finish:   act.Finish,
	}
	events := []types.EventPayload{types.MessageAppendedPayload{Message: msg}}
	next := ApplyEvent(s, types.Event{Payload: events[0]})

	var effects []effect.Effect
	for _, tc := range act.ToolCalls {
		state := types.ToolCallPending
		if !tc.Known || tc.AutoApproved {
			state = types.ToolCallStarted
		}
		started := types.ToolCallStartedPayload{ToolCall: types.ToolCall{
			ID:               tc.ToolCallID,
			OpID:             act.OpID,
			MessageID:        act.MessageID,
			Name:             tc.Name,
			Parameters:       tc.Parameters,
			RequiresApproval: !tc.AutoApproved && tc.Known,
			State:            state,
			StartedAt:        act.Now,
			RequestID:        tc.RequestID,
		}}
		events = append(events, started)
		next = ApplyEvent(next, types.Event{Payload: started, Timestamp: act.Now})

		switch {
		case !tc.Known:
			failed := types.ToolCallFailedPayload{
				ToolCallID: tc.ToolCallID,
				MessageID:  tc.UnknownResultMessageID,
				Error:      types.ToolError{Kind: types.ToolErrUnknownTool, Message: fmt.Sprintf("unknown tool %q", tc.Name)},
			}
			events = append(events, failed)
			next = ApplyEvent(next, types.Event{Payload: failed, Timestamp: act.Now})
		case tc.AutoApproved:
			effects = append(effects, effect.RunTool{
				OpID:       act.OpID,
				ToolCallID: tc.ToolCallID,
				Name:       tc.Name,
				Parameters: tc.Parameters,
			})
		default:
			effects = append(effects, effect.RequestApproval{
				RequestID:  tc.RequestID,
				ToolCallID: tc.ToolCallID,
				ToolCall:   started.ToolCall,
			})
			apReq := types.ApprovalRequestedPayload{RequestID: tc.RequestID, ToolCall: started.ToolCall}
			events = append(events, apReq)
			next = ApplyEvent(next, types.Event{Payload: apReq, Timestamp: act.Now})
		}
	}

	if len(act.ToolCalls) == 0 {
		done := types.OperationCompletedPayload{OpID: act.OpID}
		events = append(events, done)
		next = ApplyEvent(next, types.Event{Payload: done})
		return next, events, nil, nil
	}

	effects = append(effects, continuationEffects(next, act.OpID)...)
	return next, events, effects, nil
}

// reduceCompactionCompleted appends the summary as a new root message (no
// ParentID), truncating every future MessagePath(Tip) at that point without
// touching the replaced messages themselves — they stay in the DAG for
// history and for any branch that still points at them.
func reduceCompactionCompleted(s AppState, act effect.CompactionCompleted) (AppState, []types.EventPayload, []effect.Effect, error) {
	msg := types.Message{
		ID:      act.SummaryMessageID,
		Role:    types.RoleAssistant,
		Created: act.Now,
		Content: []types.Block{{Kind: types.BlockText, Text: act.SummaryText}},
		Model:   act.Model,
		Finish:  "stop",
	}
	events := []types.EventPayload{
		types.MessageAppendedPayload{Message: msg},
		types.CompactionProducedPayload{SummaryMessageID: act.SummaryMessageID, Replaced: act.Replaced},
	}
	next := ApplyEvent(s, types.Event{Payload: events[0]})
	next = ApplyEvent(next, types.Event{Payload: events[1]})
	return next, events, []effect.Effect{callLlmEffect(next, act.OpID)}, nil
}

func reduceLlmFailed(s AppState, act effect.LlmFailed) (AppState, []types.EventPayload, []effect.Effect, error) {
	events := []types.EventPayload{types.OperationCompletedPayload{OpID: act.OpID, Error: act.Message}}
	next := ApplyEvent(s, types.Event{Payload: events[0]})
	return next, events, nil, nil
}

// reduceToolOutcome handles both ToolCompleted and ToolFailed: record the
// terminal event, then — if no tool call from this operation is still
// outstanding — either loop back to the provider or close the operation out
// (§4.4 step 4).
func reduceToolOutcome(s AppState, opID types.OpID, toolCallID types.ToolCallID, payload types.EventPayload) (AppState, []types.EventPayload, []effect.Effect, error) {
	if _, ok := s.PendingToolCalls[toolCallID]; !ok {
		// Stale/duplicate outcome for a call that already resolved (or was
		// cancelled out from under the executor); drop it.
		return s, nil, nil, nil
	}
	events := []types.EventPayload{payload}
	next := ApplyEvent(s, types.Event{Payload: payload})
	return next, events, continuationEffects(next, opID), nil
}

// continuationEffects decides what happens once some tool call belonging to
// opID has just resolved (by completion, failure, or denial): if another
// call from the same operation is still outstanding, nothing happens yet —
// we're still in AwaitingToolResults; once none remain, the turn loops back
// to the provider with the updated transcript (§4.4 step 4). A cancelled or
// otherwise non-running operation never gets a CallLlm effect here.
func continuationEffects(s AppState, opID types.OpID) []effect.Effect {
	for _, pc := range s.PendingToolCalls {
		if pc.OpID == opID {
			return nil
		}
	}
	op, ok := s.Ops[opID]
	if !ok || op.State != types.OpRunning {
		return nil
	}
	return []effect.Effect{callLlmEffect(s, opID)}
}

func callLlmEffect(s AppState, opID types.OpID) effect.Effect {
	return effect.CallLlm{
		OpID:      opID,
		Model:     s.Session.Default,
		Messages:  s.MessagePath(s.Tip),
		ToolNames: allowedToolNames(s.Session.ToolConfig.Filter),
	}
}

func allowedToolNames(f types.ToolFilter) []string {
	if f.Kind != types.ToolFilterInclude {
		return nil // nil means "all registered tools" to the stepper/registry
	}
	out := append([]string(nil), f.Names...)
	sort.Strings(out)
	return out
}
