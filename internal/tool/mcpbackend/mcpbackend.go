// Package mcpbackend implements the MCP tool backend (§4.10): tools
// published by an external process or remote service speaking the Model
// Context Protocol, discovered at session-workspace-attach time and
// dispatched through the official SDK. Grounded directly on
// telnet2-opencode's internal/mcp/client.go, trimmed to the subset this
// runtime's executor needs (tool listing and invocation; resources and
// prompts are out of SPEC_FULL.md's scope) and adapted to this module's
// own tool.Backend contract instead of a bespoke Tool/ExecuteTool pair.
package mcpbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opencode-ai/agentrund/internal/tool"
)

// TransportKind selects how Backend reaches its MCP server.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportSSE   TransportKind = "sse"
)

// defaultConnectTimeout bounds the initial handshake, mirroring the
// teacher's connectServer default.
const defaultConnectTimeout = 5 * time.Second

// ServerConfig describes one MCP server registration (§4.10).
type ServerConfig struct {
	Name string

	Transport TransportKind
	Command   []string          // TransportStdio
	Env       map[string]string // TransportStdio
	Endpoint  string            // TransportSSE

	ConnectTimeout time.Duration

	// PreApproved marks every tool this server publishes as not requiring
	// approval, overriding the forced-true default (§4.10: "requires_approval
	// forced true unless the session's policy pre-approves the server").
	PreApproved bool
}

// Backend is the tool.Backend wrapping one connected MCP server session.
type Backend struct {
	name        string
	session     *sdkmcp.ClientSession
	preApproved bool
}

// Connect dials cfg's server and returns a ready Backend. The caller owns
// the returned Backend's lifetime and should call Close when the session
// that attached this workspace tears down.
func Connect(ctx context.Context, cfg ServerConfig) (*Backend, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var transport sdkmcp.Transport
	switch cfg.Transport {
	case TransportSSE:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("mcpbackend: sse transport requires an endpoint")
		}
		transport = &sdkmcp.SSEClientTransport{Endpoint: cfg.Endpoint}
	case TransportStdio:
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("mcpbackend: stdio transport requires a command")
		}
		cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
		transport = &sdkmcp.CommandTransport{Command: cmd}
	default:
		return nil, fmt.Errorf("mcpbackend: unknown transport %q", cfg.Transport)
	}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "agentrund", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpbackend: connect to %s: %w", cfg.Name, err)
	}

	return &Backend{name: cfg.Name, session: session, preApproved: cfg.PreApproved}, nil
}

func (b *Backend) Name() string { return "mcp:" + b.name }

func (b *Backend) Definitions(ctx context.Context) ([]tool.Definition, error) {
	result, err := b.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpbackend: list tools from %s: %w", b.name, err)
	}

	defs := make([]tool.Definition, 0, len(result.Tools))
	for _, t := range result.Tools {
		var schema json.RawMessage
		if t.InputSchema != nil {
			schema, _ = json.Marshal(t.InputSchema)
		}
		defs = append(defs, tool.Definition{
			Name:             qualify(b.name, t.Name),
			Description:      t.Description,
			Parameters:       schema,
			RequiresApproval: !b.preApproved,
		})
	}
	return defs, nil
}

func (b *Backend) Invoke(ctx context.Context, name string, parameters map[string]any) (tool.Output, error) {
	original := unqualify(b.name, name)
	if original == "" {
		return tool.Output{}, &tool.Error{Kind: "unknown_tool", Message: fmt.Sprintf("mcp backend %q has no tool %q", b.name, name)}
	}

	result, err := b.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: original, Arguments: parameters})
	if err != nil {
		return tool.Output{}, fmt.Errorf("mcpbackend: call %s on %s: %w", original, b.name, err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if text, ok := c.(*sdkmcp.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}

	if result.IsError {
		return tool.Output{}, &tool.Error{Kind: "tool_error", Message: sb.String()}
	}

	return tool.Output{
		Title: fmt.Sprintf("%s (%s)", original, b.name),
		Text:  sb.String(),
	}, nil
}

// Close disconnects the underlying MCP session.
func (b *Backend) Close() error {
	return b.session.Close()
}

// FromSession wraps an already-connected session directly, bypassing
// Connect's transport dialing. Grounded on
// codeready-toolchain-tarsy/pkg/mcp/testing.go's InjectSession, which
// exists for the same reason: tests wire an in-memory MCP server without
// going through a real stdio/SSE transport.
func FromSession(name string, session *sdkmcp.ClientSession, preApproved bool) *Backend {
	return &Backend{name: name, session: session, preApproved: preApproved}
}

// qualify/unqualify prefix a server's tools with its name so two servers
// publishing the same tool name don't collide in the registry, mirroring
// the teacher's sanitizeToolName + "_" prefixing in client.go's Tools/
// ExecuteTool, but using the registry's own Name() for uniqueness instead
// of a second sanitization pass.
func qualify(serverName, toolName string) string {
	return serverName + "__" + toolName
}

func unqualify(serverName, qualified string) string {
	prefix := serverName + "__"
	if !strings.HasPrefix(qualified, prefix) {
		return ""
	}
	return strings.TrimPrefix(qualified, prefix)
}
