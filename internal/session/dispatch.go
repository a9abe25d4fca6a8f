package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/opencode-ai/agentrund/internal/agent"
	"github.com/opencode-ai/agentrund/internal/approval"
	"github.com/opencode-ai/agentrund/internal/effect"
	"github.com/opencode-ai/agentrund/internal/logging"
	"github.com/opencode-ai/agentrund/internal/reducer"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// apply is the heart of the actor loop (§4.4): fold act through the pure
// reducer, persist whatever events it produced, update in-memory state,
// broadcast, then dispatch every resulting effect. Only this method — run
// from the actor's single goroutine — ever mutates a.state, so it never
// needs its own lock around the read-modify-write.
func (a *Actor) apply(ctx context.Context, act effect.Action) error {
	a.mu.Lock()
	state := a.state
	a.mu.Unlock()

	next, events, effects, err := reducer.Reduce(state, act)
	if err != nil {
		return err
	}

	if len(events) > 0 {
		seqs, err := a.store.Append(ctx, a.sessionID, events)
		if err != nil {
			return fmt.Errorf("session: persist %s: %w", a.sessionID, err)
		}
		a.mu.Lock()
		a.state = next
		a.mu.Unlock()
		for i, p := range events {
			a.bus.Broadcast(a.sessionID, types.Event{
				SessionID:      a.sessionID,
				SequenceNumber: seqs[i],
				Timestamp:      now(),
				Kind:           p.Kind(),
				Payload:        p,
			})
		}
	} else {
		a.mu.Lock()
		a.state = next
		a.mu.Unlock()
	}

	a.advanceStepper(state, act)

	for _, eff := range effects {
		a.dispatchEffect(ctx, eff)
	}
	return nil
}

// advanceStepper reports act to internal/agent's FSM for observability and
// invariant checking. before is the AppState as it stood prior to this
// apply() call, needed to recover which op an ApprovalReceived denial
// resolved a tool call for — by the time advanceStepper runs, a.state
// already has that PendingToolCall removed. A rejected transition means a
// stale or duplicate outcome reached apply (the same class of thing
// reduceToolOutcome and reduceApprovalReceived already drop silently), so
// it is logged, not treated as fatal.
func (a *Actor) advanceStepper(before reducer.AppState, act effect.Action) {
	var err error
	switch act := act.(type) {
	case effect.SendMessage:
		err = a.stepper.Start(act.OpID)
	case effect.EditMessage:
		err = a.stepper.Start(act.OpID)
	case effect.CancelOperation:
		a.stepper.Cancelled(act.OpID)
	case effect.LlmFailed:
		a.stepper.Failed(act.OpID)
	case effect.TimeoutFired:
		a.stepper.Failed(act.OpID)
	case effect.LlmCompleted:
		hasToolCalls := len(act.ToolCalls) > 0
		err = a.stepper.Completed(act.OpID, hasToolCalls)
		if err == nil && hasToolCalls {
			err = a.stepper.ToolsDispatched(act.OpID)
		}
	case effect.ToolCompleted:
		err = a.stepper.ToolResultReceived(act.OpID, a.opHasNoPendingToolCalls(act.OpID))
	case effect.ToolFailed:
		err = a.stepper.ToolResultReceived(act.OpID, a.opHasNoPendingToolCalls(act.OpID))
	case effect.ApprovalReceived:
		if pc, ok := before.PendingToolCalls[act.Decision.ToolCallID]; ok {
			err = a.stepper.ToolResultReceived(pc.OpID, a.opHasNoPendingToolCalls(pc.OpID))
		}
	}
	if err != nil {
		logging.Debug().Err(err).Msg("agent stepper: ignoring stale transition")
	}
}

func (a *Actor) opHasNoPendingToolCalls(opID types.OpID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, pc := range a.state.PendingToolCalls {
		if pc.OpID == opID {
			return false
		}
	}
	return true
}

func (a *Actor) dispatchEffect(ctx context.Context, eff effect.Effect) {
	switch e := eff.(type) {
	case effect.CallLlm:
		a.dispatchCallLlm(ctx, e)
	case effect.RunTool:
		a.dispatchRunTool(ctx, e)
	case effect.RequestApproval:
		a.dispatchRequestApproval(ctx, e)
	case effect.PersistEvents, effect.Broadcast, effect.ScheduleTimeout:
		// Reduce never emits these directly today; apply's own
		// persist/broadcast block above already covers their purpose for
		// every event Reduce returns. Kept in the switch so a future
		// Reduce change that does emit them fails loudly in review
		// instead of silently dropping work.
	}
}

func (a *Actor) dispatchRunTool(ctx context.Context, req effect.RunTool) {
	go func() {
		resultMessageID := types.NewMessageID()
		act := a.executor.Run(ctx, now(), resultMessageID, req)
		a.post(act)
	}()
}

func (a *Actor) dispatchRequestApproval(ctx context.Context, req effect.RequestApproval) {
	go func() {
		decision, err := a.gate.Open(ctx, req.RequestID, req.ToolCallID)
		if err != nil {
			return // session/gate torn down; nothing useful to report
		}
		a.post(effect.ApprovalReceived{
			Decision:  decision,
			MessageID: types.NewMessageID(),
			Now:       now(),
		})
	}()
}

func (a *Actor) dispatchCallLlm(ctx context.Context, req effect.CallLlm) {
	a.mu.Lock()
	a.stepCounts[req.OpID]++
	steps := a.stepCounts[req.OpID]
	a.mu.Unlock()

	if steps > MaxSteps {
		a.post(effect.LlmFailed{OpID: req.OpID, Message: "operation exceeded the maximum number of agent steps"})
		return
	}

	callCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancels[req.OpID] = cancel
	a.mu.Unlock()

	go func() {
		defer func() {
			a.mu.Lock()
			delete(a.cancels, req.OpID)
			a.mu.Unlock()
			cancel()
		}()

		if compacted := a.maybeCompact(callCtx, req); compacted {
			return
		}

		completion, err := a.streamWithRetry(callCtx, req)
		if err != nil {
			a.post(effect.LlmFailed{OpID: req.OpID, Message: err.Error()})
			return
		}

		resolved := a.resolveToolCalls(callCtx, completion.ToolCalls)
		a.post(effect.LlmCompleted{
			OpID:      req.OpID,
			MessageID: types.NewMessageID(),
			Model:     completion.Model,
			Content:   completion.Content,
			Finish:    completion.Finish,
			Now:       now(),
			ToolCalls: resolved,
		})
	}()
}

// maybeCompact checks req's transcript against internal/agent's context-
// window threshold (§4.4's compaction trigger, folded into the agent
// stepper's per-call budget rather than a separate scheduled effect). When
// it trips, it runs a synchronous summarization call against the same
// provider and posts CompactionCompleted instead of completing req
// directly; the reducer's response to CompactionCompleted re-emits a fresh
// CallLlm with the truncated transcript, so the caller should treat a true
// return as "this step is handled, do not also stream req".
func (a *Actor) maybeCompact(ctx context.Context, req effect.CallLlm) bool {
	estimated := agent.EstimateConversationTokens(req.Messages)
	if !agent.ShouldCompact(estimated, MaxContextTokens) {
		return false
	}
	toCompact, _ := agent.MessagesToCompact(req.Messages)
	if len(toCompact) == 0 {
		return false
	}

	prompt := agent.CompactionSystemPrompt + "\n\n" + agent.BuildSummaryPrompt(toCompact)
	summaryReq := effect.CallLlm{
		OpID:  req.OpID,
		Model: req.Model,
		Messages: []types.Message{{
			ID:      types.NewMessageID(),
			Role:    types.RoleUser,
			Created: now(),
			Content: []types.Block{{Kind: types.BlockText, Text: prompt}},
		}},
	}

	completion, err := a.streamWithRetry(ctx, summaryReq)
	if err != nil {
		logging.Warn().Err(err).Str("op", string(req.OpID)).Msg("compaction summarization failed, continuing uncompacted")
		return false
	}

	var summary string
	for _, b := range completion.Content {
		if b.Kind == types.BlockText {
			summary += b.Text
		}
	}

	replaced := make([]types.MessageID, len(toCompact))
	for i, m := range toCompact {
		replaced[i] = m.ID
	}

	a.post(effect.CompactionCompleted{
		OpID:             req.OpID,
		SummaryMessageID: types.NewMessageID(),
		Model:            completion.Model,
		SummaryText:      summary,
		Replaced:         replaced,
		Now:              now(),
	})
	return true
}

// streamWithRetry retries a provider call on a transient error using the
// same exponential backoff shape as telnet2-opencode's loop.go, forwarding
// every delta live as it arrives.
func (a *Actor) streamWithRetry(ctx context.Context, req effect.CallLlm) (*ProviderCompletion, error) {
	var completion *ProviderCompletion
	op := func() error {
		events, err := a.provider.Stream(ctx, req)
		if err != nil {
			return err
		}
		for ev := range events {
			switch {
			case ev.Delta != nil:
				if err := a.stepper.Delta(req.OpID); err != nil {
					logging.Debug().Err(err).Msg("agent stepper: ignoring stale transition")
				}
				a.bus.BroadcastDelta(a.sessionID, req.OpID, *ev.Delta)
			case ev.Completion != nil:
				completion = ev.Completion
			case ev.Err != nil:
				return ev.Err
			}
		}
		if completion == nil {
			return errors.New("provider closed its stream without a completion")
		}
		return nil
	}

	err := backoff.Retry(op, newRetryBackoff(ctx))
	if err != nil {
		return nil, err
	}
	return completion, nil
}

// resolveToolCalls judges each raw tool call request against the tool
// registry and the session's approval policy (§4.6) before the reducer
// ever sees it — Reduce itself stays purely mechanical.
func (a *Actor) resolveToolCalls(ctx context.Context, calls []types.ToolCallRequest) []effect.ResolvedToolCall {
	a.mu.Lock()
	cfg := a.state.Session.ToolConfig
	memory := a.state.Approval
	a.mu.Unlock()

	out := make([]effect.ResolvedToolCall, 0, len(calls))
	for _, c := range calls {
		if !cfg.Filter.Allows(c.Name) {
			out = append(out, effect.ResolvedToolCall{
				ToolCallID:             c.ToolCallID,
				Name:                   c.Name,
				Parameters:             c.Parameters,
				Known:                  false,
				UnknownResultMessageID: types.NewMessageID(),
			})
			continue
		}

		def, ok, err := a.registry.Definition(ctx, c.Name)
		if err != nil || !ok {
			out = append(out, effect.ResolvedToolCall{
				ToolCallID:             c.ToolCallID,
				Name:                   c.Name,
				Parameters:             c.Parameters,
				Known:                  false,
				UnknownResultMessageID: types.NewMessageID(),
			})
			continue
		}

		command, _ := c.Parameters["command"].(string)
		requiresApproval := approval.Decide(cfg, memory, c.Name, command, def.RequiresApproval)
		if !requiresApproval && a.doomLoop != nil && a.doomLoop.Check(a.sessionID, c.Name, c.Parameters) {
			requiresApproval = true
		}

		rc := effect.ResolvedToolCall{
			ToolCallID:   c.ToolCallID,
			Name:         c.Name,
			Parameters:   c.Parameters,
			Known:        true,
			AutoApproved: !requiresApproval,
		}
		if requiresApproval {
			rc.RequestID = types.NewRequestID()
		}
		out = append(out, rc)
	}
	return out
}
