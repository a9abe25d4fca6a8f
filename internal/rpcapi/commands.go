package rpcapi

import (
	"context"
	"fmt"

	"github.com/opencode-ai/agentrund/internal/session"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// CommandKind discriminates the ClientCommand variants of §6.
type CommandKind string

const (
	CommandSendMessage           CommandKind = "send_message"
	CommandEditMessage           CommandKind = "edit_message"
	CommandApproveToolCall       CommandKind = "approve_tool_call"
	CommandCancel                CommandKind = "cancel"
	CommandExecuteBashCommand    CommandKind = "execute_bash_command"
	CommandRequestWorkspaceFiles CommandKind = "request_workspace_files"
	CommandShutdown              CommandKind = "shutdown"
)

// ClientCommand is the wire shape of POST /sessions/{id}/commands: exactly
// one of the fields matching Kind is populated. Grounded on §6's
// ClientCommand sum type; represented here as a flat, tagged struct
// instead of Go's usual interface-per-variant because it crosses the wire
// as JSON and needs a single discriminant clients can switch on directly.
type ClientCommand struct {
	Kind CommandKind `json:"kind"`

	// CommandSendMessage
	Content []types.Block `json:"content,omitempty"`

	// CommandEditMessage
	MessageID  types.MessageID `json:"messageID,omitempty"`
	NewContent []types.Block   `json:"newContent,omitempty"`

	// CommandApproveToolCall
	Decision *types.ApprovalDecision `json:"decision,omitempty"`

	// CommandCancel
	OpID types.OpID `json:"opID,omitempty"`
}

// CommandResult acknowledges a dispatched command, carrying the minted
// OpID for commands that start one.
type CommandResult struct {
	OpID types.OpID `json:"opID,omitempty"`
}

// unsupportedCommand names a ClientCommand variant this runtime accepts on
// the wire but has no Actor capability to execute (see DESIGN.md's Open
// Question resolution for §6's ClientCommand set).
type unsupportedCommand struct {
	kind CommandKind
}

func (e *unsupportedCommand) Error() string {
	return fmt.Sprintf("rpcapi: %s is not supported by this runtime", e.kind)
}

// dispatchCommand routes cmd to actor's matching method. ExecuteBashCommand,
// RequestWorkspaceFiles and Shutdown have no corresponding Actor capability
// (bash and workspace access are reached only as tools the model itself
// invokes, and there is no per-session shutdown distinct from deletion) and
// are rejected with a validation error rather than silently accepted.
func dispatchCommand(ctx context.Context, actor *session.Actor, cmd ClientCommand) (CommandResult, error) {
	switch cmd.Kind {
	case CommandSendMessage:
		if len(cmd.Content) == 0 {
			return CommandResult{}, types.NewDomainError(types.ErrorValidation, "send_message requires content", nil)
		}
		opID, err := actor.SendMessage(ctx, cmd.Content)
		if err != nil {
			return CommandResult{}, types.NewDomainError(types.ErrorInternal, "send_message", err)
		}
		return CommandResult{OpID: opID}, nil

	case CommandEditMessage:
		if cmd.MessageID == "" || len(cmd.NewContent) == 0 {
			return CommandResult{}, types.NewDomainError(types.ErrorValidation, "edit_message requires messageID and newContent", nil)
		}
		opID, err := actor.EditMessage(ctx, cmd.MessageID, cmd.NewContent)
		if err != nil {
			return CommandResult{}, types.NewDomainError(types.ErrorInternal, "edit_message", err)
		}
		return CommandResult{OpID: opID}, nil

	case CommandApproveToolCall:
		if cmd.Decision == nil {
			return CommandResult{}, types.NewDomainError(types.ErrorValidation, "approve_tool_call requires a decision", nil)
		}
		if err := actor.Decide(*cmd.Decision); err != nil {
			return CommandResult{}, types.NewDomainError(types.ErrorInternal, "approve_tool_call", err)
		}
		return CommandResult{}, nil

	case CommandCancel:
		if cmd.OpID == "" {
			return CommandResult{}, types.NewDomainError(types.ErrorValidation, "cancel requires opID", nil)
		}
		if err := actor.Cancel(ctx, cmd.OpID); err != nil {
			return CommandResult{}, types.NewDomainError(types.ErrorInternal, "cancel", err)
		}
		return CommandResult{OpID: cmd.OpID}, nil

	case CommandExecuteBashCommand, CommandRequestWorkspaceFiles, CommandShutdown:
		err := &unsupportedCommand{kind: cmd.Kind}
		return CommandResult{}, types.NewDomainError(types.ErrorValidation, err.Error(), nil)

	default:
		return CommandResult{}, types.NewDomainError(types.ErrorValidation, fmt.Sprintf("rpcapi: unknown command kind %q", cmd.Kind), nil)
	}
}
