package localbackend

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencode-ai/agentrund/internal/tool"
)

const readDescription = `Reads a file from the local filesystem.

Usage:
- The filePath parameter must be an absolute path
- By default, reads up to 2000 lines from the beginning
- Optionally specify offset and limit for pagination
- Returns file contents with line numbers
- Can read image files, returned as an attachment`

const defaultReadLimit = 2000
const maxReadLineLength = 2000

func readDefinition() tool.Definition {
	return tool.Definition{
		Name:        "read",
		Description: readDescription,
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"filePath": {"type": "string", "description": "The absolute path to the file to read"},
				"offset": {"type": "integer", "description": "Line number to start reading from"},
				"limit": {"type": "integer", "description": "Number of lines to read (default: 2000)"}
			},
			"required": ["filePath"]
		}`),
		RequiresApproval: false,
	}
}

func (b *Backend) read(ctx context.Context, parameters map[string]any) (tool.Output, error) {
	filePath, ok := paramString(parameters, "filePath")
	if !ok || filePath == "" {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: "filePath is required"}
	}
	limit, ok := paramInt(parameters, "limit")
	if !ok || limit <= 0 {
		limit = defaultReadLimit
	}
	offset, _ := paramInt(parameters, "offset")

	if shouldBlockEnvFile(filePath) {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: fmt.Sprintf("reading %s is blocked", filePath)}
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: fmt.Sprintf("file not found: %s", filePath)}
	}
	if info.IsDir() {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: fmt.Sprintf("path is a directory, not a file: %s", filePath)}
	}

	if isImageFile(filePath) {
		return b.readImage(filePath)
	}
	if isBinaryFile(filePath) {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: "file appears to be binary"}
	}

	file, err := os.Open(filePath)
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
		Title:  fmt.Sprintf("Read %s", filepath.Base(filePath)),
		Text:   sb.String(),
		Structured: map[string]any{
			"file":       filePath,
			"lines":      len(lines),
			"totalLines": lineNum,
		},
	}, nil
}

func (b *Backend) readImage(path string) (tool.Output, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tool.Output{}, err
	}
	mediaType := detectMediaType(path)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data))
	return tool.Output{
		Title: fmt.Sprintf("Read %s", filepath.Base(path)),
		Text:  "(Image file)",
		Attachments: []tool.Attachment{
			{Filename: filepath.Base(path), MediaType: mediaType, URL: dataURL},
		},
	}, nil
}

func isImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	default:
		return false
	}
}

func isBinaryFile(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	buf := make([]byte, 8000)
	n, _ := file.Read(buf)
	if n == 0 {
		return false
	}
	nonPrintable := 0
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return true
		}
		if buf[i] < 32 && buf[i] != '\n' && buf[i] != '\r' && buf[i] != '\t' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(n) > 0.3
}

func detectMediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// shouldBlockEnvFile keeps secrets out of the transcript by default, with an
// explicit whitelist for files meant to be read (samples/examples).
func shouldBlockEnvFile(filePath string) bool {
	for _, w := range []string{".env.sample", ".example"} {
		if strings.HasSuffix(filePath, w) {
			return false
		}
	}
	return strings.Contains(filePath, ".env")
}
