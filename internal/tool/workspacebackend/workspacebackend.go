// Package workspacebackend implements the workspace-scoped tool backend
// (§4): filesystem operations delegated to a session's workspace capability,
// which is either a local directory or a remote service addressed by
// pkg/types.WorkspaceConfig. Grounded on telnet2-opencode's
// internal/tool/{read.go,write.go} for the local-path case, confined to the
// workspace root instead of operating on absolute paths anywhere on disk,
// and on its internal/mcp/client.go's net/http-client-over-a-configured-
// endpoint pattern for the remote case.
package workspacebackend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opencode-ai/agentrund/internal/tool"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// filesystem is the operation set both the local and remote implementations
// satisfy; Backend dispatches tool calls onto whichever one it was built
// with.
type filesystem interface {
	readFile(ctx context.Context, path string, offset, limit int) (tool.Output, error)
	writeFile(ctx context.Context, path, content string) (tool.Output, error)
	listFiles(ctx context.Context, path string) (tool.Output, error)
}

// Backend is the workspace-scoped toolset: read, write, and ls, all
// resolved against a single workspace capability (§6's WorkspaceConfig).
type Backend struct {
	fs filesystem
}

// New builds a Backend for cfg, dispatching to a local, path-confined
// filesystem or an HTTP client against cfg.Address depending on cfg.Kind.
func New(cfg types.WorkspaceConfig) (*Backend, error) {
	switch cfg.Kind {
	case types.WorkspaceLocal:
		if cfg.Path == "" {
			return nil, fmt.Errorf("workspacebackend: local workspace requires a path")
		}
		return &Backend{fs: newLocalFS(cfg.Path)}, nil
	case types.WorkspaceRemote:
		if cfg.Address == "" {
			return nil, fmt.Errorf("workspacebackend: remote workspace requires an address")
		}
		return &Backend{fs: newRemoteFS(cfg.Address, cfg.Auth)}, nil
	default:
		return nil, fmt.Errorf("workspacebackend: unknown workspace kind %q", cfg.Kind)
	}
}

func (b *Backend) Name() string { return "workspace" }

func (b *Backend) Definitions(ctx context.Context) ([]tool.Definition, error) {
	return []tool.Definition{
		workspaceReadDefinition(),
		workspaceWriteDefinition(),
		workspaceListDefinition(),
	}, nil
}

func (b *Backend) Invoke(ctx context.Context, name string, parameters map[string]any) (tool.Output, error) {
	switch name {
	case "workspace_read":
		path, ok := paramString(parameters, "path")
		if !ok || path == "" {
			return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: "path is required"}
		}
		limit, ok := paramInt(parameters, "limit")
		if !ok || limit <= 0 {
			limit = defaultReadLimit
		}
		offset, _ := paramInt(parameters, "offset")
		return b.fs.readFile(ctx, path, offset, limit)
	case "workspace_write":
		path, ok := paramString(parameters, "path")
		if !ok || path == "" {
			return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: "path is required"}
		}
		content, _ := paramString(parameters, "content")
		return b.fs.writeFile(ctx, path, content)
	case "workspace_ls":
		path, _ := paramString(parameters, "path")
		return b.fs.listFiles(ctx, path)
	default:
		return tool.Output{}, &tool.Error{Kind: "unknown_tool", Message: fmt.Sprintf("workspace backend has no tool %q", name)}
	}
}

func workspaceReadDefinition() tool.Definition {
	return tool.Definition{
		Name:        "workspace_read",
		Description: "Reads a file relative to the session's workspace root.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Path relative to the workspace root"},
				"offset": {"type": "integer", "description": "Line number to start reading from"},
				"limit": {"type": "integer", "description": "Number of lines to read (default: 2000)"}
			},
			"required": ["path"]
		}`),
		RequiresApproval: false,
	}
}

func workspaceWriteDefinition() tool.Definition {
	return tool.Definition{
		Name:        "workspace_write",
		Description: "Writes content to a file relative to the session's workspace root, creating parent directories as needed.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Path relative to the workspace root"},
				"content": {"type": "string", "description": "The content to write"}
			},
			"required": ["path", "content"]
		}`),
		RequiresApproval: true,
	}
}

func workspaceListDefinition() tool.Definition {
	return tool.Definition{
		Name:        "workspace_ls",
		Description: "Lists entries of a directory relative to the session's workspace root.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Path relative to the workspace root (default: root)"}
			}
		}`),
		RequiresApproval: false,
	}
}

func paramString(parameters map[string]any, key string) (string, bool) {
	v, ok := parameters[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func paramInt(parameters map[string]any, key string) (int, bool) {
	v, ok := parameters[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
