package localbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/opencode-ai/agentrund/internal/tool"
)

const editDescription = `Performs exact string replacements in a file.

Usage:
- filePath must be an absolute path
- oldString must exist in the file (exact match required)
- newString replaces oldString
- Use replaceAll to replace every occurrence
- Fails if oldString is not unique in the file, unless replaceAll is set`

func editDefinition() tool.Definition {
	return tool.Definition{
		Name:        "edit",
		Description: editDescription,
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"filePath": {"type": "string", "description": "The absolute path to the file to edit"},
				"oldString": {"type": "string", "description": "The exact text to replace"},
				"newString": {"type": "string", "description": "The text to replace it with"},
				"replaceAll": {"type": "boolean", "description": "Replace all occurrences (default: false)"}
			},
			"required": ["filePath", "oldString", "newString"]
		}`),
		RequiresApproval: true,
	}
}

func (b *Backend) edit(ctx context.Context, parameters map[string]any) (tool.Output, error) {
	filePath, ok := paramString(parameters, "filePath")
	if !ok || filePath == "" {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: "filePath is required"}
	}
	oldString, _ := paramString(parameters, "oldString")
	newString, _ := paramString(parameters, "newString")
	if oldString == newString {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: "oldString and newString must differ"}
	}
	replaceAll, _ := parameters["replaceAll"].(bool)

	content, err := os.ReadFile(filePath)
	if err != nil {
		return tool.Output{}, fmt.Errorf("failed to read file: %w", err)
	}
	before := string(content)

	count := strings.Count(before, oldString)
	if count == 0 {
		return tool.Output{}, &tool.Error{Kind: "not_found", Message: fmt.Sprintf("oldString not found in %s", filePath)}
	}
	if !replaceAll && count > 1 {
		return tool.Output{}, &tool.Error{Kind: "ambiguous", Message: fmt.Sprintf("oldString appears %d times; use replaceAll or provide more context", count)}
	}

	var after string
	if replaceAll {
		after = strings.ReplaceAll(before, oldString, newString)
	} else {
		after = strings.Replace(before, oldString, newString, 1)
	}

	if err := os.WriteFile(filePath, []byte(after), 0o644); err != nil {
		return tool.Output{}, fmt.Errorf("failed to write file: %w", err)
	}

	diffText, additions, deletions := unifiedDiff(filePath, before, after)

	return tool.Output{
		Title: fmt.Sprintf("Edited %s", filepath.Base(filePath)),
		Text:  diffText,
		Structured: map[string]any{
			"file":      filePath,
			"additions": additions,
			"deletions": deletions,
		},
	}, nil
}

// unifiedDiff builds a patch-style diff and line-change counts, grounded on
// telnet2-opencode's internal/tool/diff.go buildDiffMetadata.
func unifiedDiff(path, before, after string) (string, int, int) {
	if before == after {
		return "", 0, 0
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var additions, deletions int
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += countLines(d.Text)
		}
	}

	patches := dmp.PatchMake(before, diffs)
	patchText := dmp.PatchToText(patches)
	if patchText == "" {
		return "", additions, deletions
	}

	var out strings.Builder
	fmt.Fprintf(&out, "--- %s\n+++ %s\n", path, path)
	out.WriteString(patchText)
	return out.String(), additions, deletions
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
