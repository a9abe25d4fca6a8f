package agent

import (
	"strings"

	"github.com/opencode-ai/agentrund/pkg/types"
)

// Compaction constants, carried over from telnet2-opencode's
// internal/session/compact.go DefaultCompactionConfig.
const (
	// DefaultContextThreshold is the fraction of a model's context window
	// that triggers compaction.
	DefaultContextThreshold = 0.75
	// DefaultMinMessagesToKeep is never summarized away, regardless of how
	// over threshold the conversation is.
	DefaultMinMessagesToKeep = 4
	// DefaultSummaryMaxTokens bounds the summarization call itself.
	DefaultSummaryMaxTokens = 2000
)

// EstimateTokens is telnet2-opencode's own rough heuristic (~4 characters
// per token) rather than a real tokenizer — this module has no concrete
// provider wired in to ask for an exact count, and the threshold check only
// needs to be approximately right.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// EstimateMessageTokens sums the estimate across every text-bearing block of
// one message (user/assistant content, tool-result text).
func EstimateMessageTokens(msg types.Message) int {
	total := 0
	for _, b := range msg.Content {
		switch b.Kind {
		case types.BlockText:
			total += EstimateTokens(b.Text)
		case types.BlockThought:
			total += EstimateTokens(b.Thought)
		case types.BlockToolCallRequest:
			if b.ToolCall != nil {
				total += EstimateTokens(b.ToolCall.Name) + len(b.ToolCall.Parameters)*4
			}
		}
	}
	if msg.Result != nil {
		total += EstimateTokens(msg.Result.Output)
	}
	if msg.ResultErr != nil {
		total += EstimateTokens(msg.ResultErr.Message)
	}
	return total
}

// EstimateConversationTokens sums EstimateMessageTokens across a transcript,
// the shape AppState.MessagePath returns.
func EstimateConversationTokens(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessageTokens(m)
	}
	return total
}

// ShouldCompact reports whether estimated has crossed DefaultContextThreshold
// of maxContextTokens.
func ShouldCompact(estimated, maxContextTokens int) bool {
	if maxContextTokens <= 0 {
		return false
	}
	return float64(estimated) >= DefaultContextThreshold*float64(maxContextTokens)
}

// CompactionSystemPrompt is handed to the provider as the system message for
// a summarization call, carried over near-verbatim from
// telnet2-opencode's compactionSystemPrompt.
const CompactionSystemPrompt = `You are a conversation summarizer. Create a concise summary of the conversation that preserves key context for continuing the discussion.

Focus on:
1. What was accomplished
2. Current work in progress
3. Files involved
4. Next steps
5. Any key user requests or constraints

Be concise but detailed enough that work can continue seamlessly.`

// BuildSummaryPrompt renders the messages to be compacted into a single user
// prompt for the summarization call, grounded on telnet2-opencode's
// buildSummaryPrompt (adapted from that module's Part-based message storage
// to this module's types.Block content).
func BuildSummaryPrompt(messages []types.Message) string {
	var b strings.Builder
	b.WriteString("Please summarize the following conversation, focusing on:\n")
	b.WriteString("1. Key decisions and outcomes\n")
	b.WriteString("2. Files that were modified\n")
	b.WriteString("3. Important context for continuing the work\n\n")
	b.WriteString("---\n\n")

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleUser:
			b.WriteString("USER:\n")
		case types.RoleAssistant:
			b.WriteString("ASSISTANT:\n")
		case types.RoleTool:
			b.WriteString("TOOL RESULT:\n")
		}

		for _, part := range msg.Content {
			switch part.Kind {
			case types.BlockText:
				b.WriteString(part.Text)
				b.WriteString("\n")
			case types.BlockToolCallRequest:
				if part.ToolCall != nil {
					b.WriteString("[Tool call: " + part.ToolCall.Name + "]\n")
				}
			}
		}
		if msg.Result != nil {
			text := msg.Result.Output
			if len(text) > 500 {
				text = text[:500] + "..."
			}
			b.WriteString(text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

// MessagesToCompact splits a transcript into the prefix that should be
// folded into a summary and the suffix that stays verbatim, keeping at least
// DefaultMinMessagesToKeep recent messages regardless of how the threshold
// check came out.
func MessagesToCompact(messages []types.Message) (toCompact, toKeep []types.Message) {
	if len(messages) <= DefaultMinMessagesToKeep {
		return nil, messages
	}
	split := len(messages) - DefaultMinMessagesToKeep
	return messages[:split], messages[split:]
}
