package localbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opencode-ai/agentrund/internal/tool"
)

const writeDescription = `Writes content to a file on the local filesystem.

Usage:
- The filePath parameter must be an absolute path
- This tool overwrites existing files
- Parent directories are created if they don't exist
- Prefer editing existing files over creating new ones`

func writeDefinition() tool.Definition {
	return tool.Definition{
		Name:        "write",
		Description: writeDescription,
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"filePath": {"type": "string", "description": "The absolute path to the file to write"},
				"content": {"type": "string", "description": "The content to write to the file"}
			},
			"required": ["filePath", "content"]
		}`),
		RequiresApproval: true,
	}
}

func (b *Backend) write(ctx context.Context, parameters map[string]any) (tool.Output, error) {
	filePath, ok := paramString(parameters, "filePath")
	if !ok || filePath == "" {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: "filePath is required"}
	}
	content, _ := paramString(parameters, "content")

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return tool.Output{}, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return tool.Output{}, fmt.Errorf("failed to write file: %w", err)
	}

	return tool.Output{
		Title: fmt.Sprintf("Wrote %s", filepath.Base(filePath)),
		Text:  fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), filePath),
		Structured: map[string]any{
			"file":  filePath,
			"bytes": len(content),
		},
	}, nil
}
