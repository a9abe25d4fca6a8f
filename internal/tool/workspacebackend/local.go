package workspacebackend

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencode-ai/agentrund/internal/tool"
)

const defaultReadLimit = 2000
const maxReadLineLength = 2000

// localFS confines every path to root: a path is cleaned as if rooted at
// "/" and then joined under root, so ".." segments and absolute paths land
// inside the tree instead of outside it (symlinks are not resolved) — the workspace
// capability is the sandbox boundary (spec's Non-goals leave sandboxing
// arbitrary command execution to the caller, but a workspace tool backend
// must not itself let a relative path walk out of its root).
type localFS struct {
	root string
}

func newLocalFS(root string) *localFS {
	return &localFS{root: root}
}

func (l *localFS) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	full := filepath.Join(l.root, clean)
	if !strings.HasPrefix(full, filepath.Clean(l.root)+string(filepath.Separator)) && full != filepath.Clean(l.root) {
		return "", fmt.Errorf("path %q escapes the workspace root", path)
	}
	return full, nil
}

func (l *localFS) readFile(ctx context.Context, path string, offset, limit int) (tool.Output, error) {
	full, err := l.resolve(path)
	if err != nil {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: err.Error()}
	}

	info, err := os.Stat(full)
	if err != nil {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: fmt.Sprintf("file not found: %s", path)}
	}
	if info.IsDir() {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: fmt.Sprintf("path is a directory, not a file: %s", path)}
	}

	file, err := os.Open(full)
	if err != nil {
		return tool.Output{}, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if offset > 0 && lineNum < offset {
			continue
		}
		if len(lines) >= limit {
			break
		}
		line := scanner.Text()
		if len(line) > maxReadLineLength {
			line = line[:maxReadLineLength] + "..."
		}
		lines = append(lines, fmt.Sprintf("%05d| %s", lineNum, line))
	}

	var sb strings.Builder
	sb.WriteString("<file>\n")
	sb.WriteString(strings.Join(lines, "\n"))
	lastReadLine := len(lines)
	if offset > 1 {
		lastReadLine += offset - 1
	}
	if lineNum > lastReadLine {
		sb.WriteString(fmt.Sprintf("\n\n(File has more lines. Use 'offset' parameter to read beyond line %d)", lastReadLine))
	} else {
		sb.WriteString(fmt.Sprintf("\n\n(End of file - total %d lines)", lineNum))
	}
	sb.WriteString("\n</file>")

	return tool.Output{
		Title: fmt.Sprintf("Read %s", path),
		Text:  sb.String(),
		Structured: map[string]any{
			"path":       path,
			"lines":      len(lines),
			"totalLines": lineNum,
		},
	}, nil
}

func (l *localFS) writeFile(ctx context.Context, path, content string) (tool.Output, error) {
	full, err := l.resolve(path)
	if err != nil {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: err.Error()}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return tool.Output{}, fmt.Errorf("workspace: create directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return tool.Output{}, fmt.Errorf("workspace: write file: %w", err)
	}

	return tool.Output{
		Title: fmt.Sprintf("Wrote %s", path),
		Text:  fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path),
		Structured: map[string]any{
			"path":  path,
			"bytes": len(content),
		},
	}, nil
}

func (l *localFS) listFiles(ctx context.Context, path string) (tool.Output, error) {
	full, err := l.resolve(path)
	if err != nil {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: err.Error()}
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: fmt.Sprintf("directory not found: %s", path)}
	}

	names := make([]string, 0, len(entries))
	var sb strings.Builder
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
		sb.WriteString(name)
		sb.WriteString("\n")
	}

	return tool.Output{
		Title:      fmt.Sprintf("List %s", path),
		Text:       sb.String(),
		Structured: map[string]any{"path": path, "entries": names},
	}, nil
}
