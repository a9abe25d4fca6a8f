package session

import (
	"context"

	"github.com/opencode-ai/agentrund/internal/effect"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// Provider starts one LLM call and streams its raw outcome. Concrete
// provider wiring (Anthropic, OpenAI, etc. via golang.org/x/oauth2 and an
// API-key client) is out of this module's scope — this interface, and the
// retry/backoff/step-limit machinery the Actor wraps around it, is what
// SPEC_FULL.md's agent-stepper half of §4.4 actually requires, grounded on
// telnet2-opencode's internal/session/loop.go.
type Provider interface {
	Stream(ctx context.Context, req effect.CallLlm) (<-chan ProviderEvent, error)
}

// ProviderEvent is one item from a Provider's stream: either a delta (more
// may follow) or a terminal Completion/Err (exactly one, always last).
// ResolvedToolCall resolution happens after Completion, outside the
// Provider boundary, since it needs the registry and approval memory the
// provider has no business knowing about.
type ProviderEvent struct {
	Delta      *ProviderDelta
	Completion *ProviderCompletion
	Err        error
}

// ProviderDelta is one streamed chunk of the assistant's in-progress reply.
type ProviderDelta struct {
	Text     string
	Thought  string
	ToolCall *types.ToolCallRequest
}

// ProviderCompletion is the fully assembled assistant turn.
type ProviderCompletion struct {
	Content   []types.Block
	Model     types.ModelRef
	Finish    string
	ToolCalls []types.ToolCallRequest
}
