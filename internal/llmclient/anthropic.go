package llmclient

import (
	"context"
	"encoding/json"

	"github.com/opencode-ai/agentrund/internal/effect"
	"github.com/opencode-ai/agentrund/internal/providerauth"
	"github.com/opencode-ai/agentrund/internal/session"
	"github.com/opencode-ai/agentrund/pkg/types"
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
}

// anthropicStreamEvent covers the handful of event shapes messages
// streaming emits that a minimal client needs: content_block_delta for
// text, message_delta for the stop reason.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
}

const anthropicMaxTokens = 4096

func (p *HTTPProvider) streamAnthropic(ctx context.Context, directive providerauth.AuthDirective, req effect.CallLlm) (<-chan session.ProviderEvent, error) {
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == types.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, anthropicMessage{Role: role, Content: flattenText(m.Content)})
	}

	body := anthropicRequest{
		Model:     req.Model.ModelID,
		Messages:  messages,
		MaxTokens: anthropicMaxTokens,
		Stream:    true,
	}

	resp, err := p.do(ctx, directive, "/v1/messages", body)
	if err != nil {
		return nil, err
	}

	out := make(chan session.ProviderEvent, 8)
	go func() {
		defer close(out)
		var text, finish string

		err := scanSSE(resp, "", func(data string) error {
			var ev anthropicStreamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				return nil
			}
			switch ev.Type {
			case "content_block_delta":
				if ev.Delta.Text == "" {
					return nil
				}
				text += ev.Delta.Text
				select {
				case out <- session.ProviderEvent{Delta: &session.ProviderDelta{Text: ev.Delta.Text}}:
				case <-ctx.Done():
					return ctx.Err()
				}
			case "message_delta":
				if ev.Delta.StopReason != "" {
					finish = ev.Delta.StopReason
				}
			case "message_stop":
				return errStreamDone
			}
			return nil
		})
		if err != nil && err != errStreamDone {
			out <- session.ProviderEvent{Err: types.NewDomainError(types.ErrorProvider, "stream anthropic response", err)}
			return
		}

		out <- session.ProviderEvent{Completion: &session.ProviderCompletion{
			Content: []types.Block{{Kind: types.BlockText, Text: text}},
			Model:   req.Model,
			Finish:  finish,
		}}
	}()
	return out, nil
}
