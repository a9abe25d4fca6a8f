// Package localbackend implements the builtin local toolset (§4.11):
// filesystem and shell tools that run directly on the runtime's own
// workdir, with no workspace or MCP round trip. Grounded on
// telnet2-opencode's internal/tool/{read.go,write.go,edit.go,bash.go},
// stripped of Eino wrapping and the event-bus publish calls that package
// did for file edits — callers of this backend observe file writes
// through the normal ToolCompleted event instead.
package localbackend

import (
	"context"
	"fmt"

	"github.com/opencode-ai/agentrund/internal/tool"
)

// Backend is the builtin local toolset: read, write, edit, and bash. Each
// method is a thin dispatcher to the matching *.go file in this package.
type Backend struct {
	workDir string
}

// New constructs the local backend rooted at workDir.
func New(workDir string) *Backend {
	return &Backend{workDir: workDir}
}

func (b *Backend) Name() string { return "local" }

func (b *Backend) Definitions(ctx context.Context) ([]tool.Definition, error) {
	return []tool.Definition{
		readDefinition(),
		writeDefinition(),
		editDefinition(),
		bashDefinition(),
	}, nil
}

func (b *Backend) Invoke(ctx context.Context, name string, parameters map[string]any) (tool.Output, error) {
	switch name {
	case "read":
		return b.read(ctx, parameters)
	case "write":
		return b.write(ctx, parameters)
	case "edit":
		return b.edit(ctx, parameters)
	case "bash":
		return b.bash(ctx, parameters)
	default:
		return tool.Output{}, &tool.Error{Kind: "unknown_tool", Message: fmt.Sprintf("local backend has no tool %q", name)}
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
