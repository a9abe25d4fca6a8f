package llmclient

import (
	"context"
	"encoding/json"

	"github.com/opencode-ai/agentrund/internal/effect"
	"github.com/opencode-ai/agentrund/internal/providerauth"
	"github.com/opencode-ai/agentrund/internal/session"
	"github.com/opencode-ai/agentrund/pkg/types"
)

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func toOpenAIMessages(msgs []types.Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(msgs))
	for _, m := range msgs {
		role := string(m.Role)
		if m.Role == types.RoleTool {
			role = "tool"
		}
		out = append(out, openAIMessage{Role: role, Content: flattenText(m.Content)})
	}
	return out
}

func flattenText(blocks []types.Block) string {
	var text string
	for _, b := range blocks {
		if b.Kind == types.BlockText {
			if text != "" {
				text += "\n"
			}
			text += b.Text
		}
	}
	return text
}

func (p *HTTPProvider) streamOpenAI(ctx context.Context, directive providerauth.AuthDirective, req effect.CallLlm) (<-chan session.ProviderEvent, error) {
	body := openAIRequest{
		Model:    req.Model.ModelID,
		Messages: toOpenAIMessages(req.Messages),
		Stream:   true,
	}

	resp, err := p.do(ctx, directive, "/chat/completions", body)
	if err != nil {
		return nil, err
	}

	out := make(chan session.ProviderEvent, 8)
	go func() {
		defer close(out)
		var text, finish string

		err := scanSSE(resp, "[DONE]", func(data string) error {
			var chunk openAIStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return nil // tolerate malformed keep-alives
			}
			if len(chunk.Choices) == 0 {
				return nil
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				text += choice.Delta.Content
				select {
				case out <- session.ProviderEvent{Delta: &session.ProviderDelta{Text: choice.Delta.Content}}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
			return nil
		})
		if err != nil {
			out <- session.ProviderEvent{Err: types.NewDomainError(types.ErrorProvider, "stream openai response", err)}
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
