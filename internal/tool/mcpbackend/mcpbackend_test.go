package mcpbackend

import (
	"context"
	"encoding/json"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var emptySchema = json.RawMessage(`{"type":"object"}`)

// startInMemoryServer wires an in-memory MCP server/client session pair,
// grounded on codeready-toolchain-tarsy/pkg/mcp/client_test.go's
// startTestServer + connectClientDirect.
func startInMemoryServer(t *testing.T, name string, tools map[string]sdkmcp.ToolHandler) *sdkmcp.ClientSession {
	t.Helper()

	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: name, Version: "test"}, nil)
	for toolName, handler := range tools {
		server.AddTool(&sdkmcp.Tool{
			Name:        toolName,
			Description: "test tool: " + toolName,
			InputSchema: emptySchema,
		}, handler)
	}

	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	go func() { _ = server.Run(context.Background(), serverTransport) }()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "agentrund-test", Version: "test"}, nil)
	session, err := client.Connect(context.Background(), clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func TestDefinitionsForcesApprovalByDefault(t *testing.T) {
	session := startInMemoryServer(t, "calc", map[string]sdkmcp.ToolHandler{
		"sum": func(_ context.Context, _ *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "3"}}}, nil
		},
	})
	b := FromSession("calc", session, false)

	defs, err := b.Definitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "calc__sum", defs[0].Name)
	assert.True(t, defs[0].RequiresApproval)
}

func TestDefinitionsRespectsPreApproved(t *testing.T) {
	session := startInMemoryServer(t, "calc", map[string]sdkmcp.ToolHandler{
		"sum": func(_ context.Context, _ *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "3"}}}, nil
		},
	})
	b := FromSession("calc", session, true)

	defs, err := b.Definitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.False(t, defs[0].RequiresApproval)
}

func TestInvokeDispatchesToQualifiedTool(t *testing.T) {
	session := startInMemoryServer(t, "calc", map[string]sdkmcp.ToolHandler{
		"sum": func(_ context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "42"}}}, nil
		},
	})
	b := FromSession("calc", session, false)

	out, err := b.Invoke(context.Background(), "calc__sum", map[string]any{"numbers": []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, "42", out.Text)
}

func TestInvokeUnknownToolFails(t *testing.T) {
	session := startInMemoryServer(t, "calc", map[string]sdkmcp.ToolHandler{})
	b := FromSession("calc", session, false)

	_, err := b.Invoke(context.Background(), "other__sum", map[string]any{})
	require.Error(t, err)
}

func TestInvokeSurfacesToolError(t *testing.T) {
	session := startInMemoryServer(t, "calc", map[string]sdkmcp.ToolHandler{
		"fail": func(_ context.Context, _ *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			return &sdkmcp.CallToolResult{
				IsError: true,
				Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "boom"}},
			}, nil
		},
	})
	b := FromSession("calc", session, false)

	_, err := b.Invoke(context.Background(), "calc__fail", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestConnectRejectsUnknownTransport(t *testing.T) {
	_, err := Connect(context.Background(), ServerConfig{Name: "x", Transport: "bogus"})
	assert.Error(t, err)
}

func TestConnectRejectsMissingCommand(t *testing.T) {
	_, err := Connect(context.Background(), ServerConfig{Name: "x", Transport: TransportStdio})
	assert.Error(t, err)
}

func TestConnectRejectsMissingEndpoint(t *testing.T) {
	_, err := Connect(context.Background(), ServerConfig{Name: "x", Transport: TransportSSE})
	assert.Error(t, err)
}
