package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/opencode-ai/agentrund/internal/effect"
	"github.com/opencode-ai/agentrund/internal/logging"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// DefaultTimeout bounds a tool call that doesn't ask for a longer one.
const DefaultTimeout = 180 * time.Second

// MaxBashTimeout is the longest a bash call is ever allowed to run,
// regardless of what it asks for (§4.11), grounded on telnet2-opencode's
// bash.go MaxBashTimeout but widened here to one hour.
const MaxBashTimeout = time.Hour

// DefaultMaxConcurrent is the default per-session ceiling on tool calls
// running at once (§5).
const DefaultMaxConcurrent = 8

// Executor runs RunTool effects against a Registry, enforcing a per-session
// concurrency ceiling and a timeout per call, and reports the outcome as
// the effect.Action the reducer expects.
type Executor struct {
	registry *Registry
	sem      chan struct{}
}

// NewExecutor builds an Executor with the given concurrency ceiling (0 uses
// DefaultMaxConcurrent).
func NewExecutor(registry *Registry, maxConcurrent int) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Executor{registry: registry, sem: make(chan struct{}, maxConcurrent)}
}

// Run dispatches one RunTool effect and blocks until it completes, is
// cancelled via ctx, or its timeout elapses. The caller is expected to
// invoke Run from its own goroutine per call so the concurrency ceiling
// throttles actual work without blocking the caller's dispatch loop.
func (e *Executor) Run(ctx context.Context, now types.Timestamp, resultMessageID types.MessageID, req effect.RunTool) effect.Action {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return toolFailed(req, resultMessageID, now, types.ToolErrCancelled, "cancelled waiting for a free execution slot")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if req.Name == "bash" && timeout > MaxBashTimeout {
		timeout = MaxBashTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backend, ok, err := e.registry.Resolve(callCtx, req.Name)
	if err != nil {
		logging.Warn().Err(err).Str("tool", req.Name).Msg("tool resolution failed")
		return toolFailed(req, resultMessageID, now, types.ToolErrInternal, err.Error())
	}
	if !ok {
		logging.Debug().Str("tool", req.Name).Msg("unknown tool requested")
		return toolFailed(req, resultMessageID, now, types.ToolErrUnknownTool, fmt.Sprintf("unknown tool %q", req.Name))
	}

	out, err := backend.Invoke(callCtx, req.Name, req.Parameters)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			logging.Warn().Str("tool", req.Name).Dur("timeout", timeout).Msg("tool call timed out")
			return toolFailed(req, resultMessageID, now, types.ToolErrTimeout, fmt.Sprintf("tool call exceeded %s", timeout))
		}
		if callCtx.Err() == context.Canceled {
			return toolFailed(req, resultMessageID, now, types.ToolErrCancelled, "cancelled")
		}
		if backendErr, ok := err.(*Error); ok {
			logging.Debug().Err(backendErr).Str("tool", req.Name).Msg("tool call failed")
			return toolFailed(req, resultMessageID, now, types.ToolErrorKind(backendErr.Kind), backendErr.Message)
		}
		logging.Warn().Err(err).Str("tool", req.Name).Msg("tool call failed")
		return toolFailed(req, resultMessageID, now, types.ToolErrInternal, err.Error())
	}

	attachments := make([]types.Attachment, 0, len(out.Attachments))
	for _, a := range out.Attachments {
		attachments = append(attachments, types.Attachment{Filename: a.Filename, MediaType: a.MediaType, URL: a.URL})
	}
	return effect.ToolCompleted{
		OpID:       req.OpID,
		ToolCallID: req.ToolCallID,
		MessageID:  resultMessageID,
		Now:        now,
		Result: types.ToolResult{
			Title:       out.Title,
			Output:      out.Text,
			Structured:  out.Structured,
			Attachments: attachments,
		},
	}
}

func toolFailed(req effect.RunTool, resultMessageID types.MessageID, now types.Timestamp, kind types.ToolErrorKind, message string) effect.Action {
	return effect.ToolFailed{
		OpID:       req.OpID,
		ToolCallID: req.ToolCallID,
		MessageID:  resultMessageID,
		Now:        now,
		Error:      types.ToolError{Kind: kind, Message: message},
	}
}
