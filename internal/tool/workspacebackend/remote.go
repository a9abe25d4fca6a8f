package workspacebackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/opencode-ai/agentrund/internal/tool"
)

// defaultRemoteTimeout bounds a single workspace HTTP call, grounded on
// telnet2-opencode's internal/mcp/client.go connectServer default.
const defaultRemoteTimeout = 5 * time.Second

// remoteFS delegates filesystem operations to a workspace service over
// HTTP, the way telnet2-opencode's mcp.Client.connectServer builds an
// *http.Client against a configured endpoint for its SSEClientTransport —
// applied here to a small JSON file-operations API instead of MCP's
// protocol.
type remoteFS struct {
	address string
	auth    string
	client  *http.Client
}

func newRemoteFS(address, auth string) *remoteFS {
	return &remoteFS{
		address: address,
		auth:    auth,
		client:  &http.Client{Timeout: defaultRemoteTimeout},
	}
}

type remoteReadResponse struct {
	Content    string `json:"content"`
	Lines      int    `json:"lines"`
	TotalLines int    `json:"totalLines"`
}

type remoteListResponse struct {
	Entries []string `json:"entries"`
}

func (r *remoteFS) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	u := r.address + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("workspace: encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("workspace: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.auth != "" {
		req.Header.Set("Authorization", "Bearer "+r.auth)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("workspace: request to %s: %w", r.address, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("workspace: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &tool.Error{Kind: "workspace_error", Message: fmt.Sprintf("workspace service returned %d: %s", resp.StatusCode, string(respBody))}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("workspace: decode response: %w", err)
	}
	return nil
}

func (r *remoteFS) readFile(ctx context.Context, path string, offset, limit int) (tool.Output, error) {
	query := url.Values{"path": {path}}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp remoteReadResponse
	if err := r.do(ctx, http.MethodGet, "/files/read", query, nil, &resp); err != nil {
		return tool.Output{}, err
	}

	return tool.Output{
		Title: fmt.Sprintf("Read %s", path),
		Text:  resp.Content,
		Structured: map[string]any{
			"path":       path,
			"lines":      resp.Lines,
			"totalLines": resp.TotalLines,
		},
	}, nil
}

func (r *remoteFS) writeFile(ctx context.Context, path, content string) (tool.Output, error) {
	body := map[string]string{"path": path, "content": content}
	if err := r.do(ctx, http.MethodPut, "/files/write", nil, body, nil); err != nil {
		return tool.Output{}, err
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

func (r *remoteFS) listFiles(ctx context.Context, path string) (tool.Output, error) {
	query := url.Values{"path": {path}}

	var resp remoteListResponse
	if err := r.do(ctx, http.MethodGet, "/files/list", query, nil, &resp); err != nil {
		return tool.Output{}, err
	}

	text := ""
	for _, e := range resp.Entries {
		text += e + "\n"
	}

	return tool.Output{
		Title:      fmt.Sprintf("List %s", path),
		Text:       text,
		Structured: map[string]any{"path": path, "entries": resp.Entries},
	}, nil
}
