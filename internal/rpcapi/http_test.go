package rpcapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/agentrund/internal/effect"
	"github.com/opencode-ai/agentrund/internal/eventlog"
	"github.com/opencode-ai/agentrund/internal/session"
	"github.com/opencode-ai/agentrund/internal/subscription"
	"github.com/opencode-ai/agentrund/internal/tool"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// fakeProvider completes every CallLlm immediately with a fixed text reply
// and no tool calls, enough to drive SendMessage through to
// OperationCompleted without a real LLM.
type fakeProvider struct{}

func (fakeProvider) Stream(ctx context.Context, req effect.CallLlm) (<-chan session.ProviderEvent, error) {
	out := make(chan session.ProviderEvent, 2)
	out <- session.ProviderEvent{Delta: &session.ProviderDelta{Text: "hi"}}
	out <- session.ProviderEvent{Completion: &session.ProviderCompletion{
		Content: []types.Block{{Kind: types.BlockText, Text: "hi"}},
		Model:   types.ModelRef{ProviderID: "test", ModelID: "test-model"},
		Finish:  "stop",
	}}
	close(out)
	return out, nil
}

func newTestHTTPServer(t *testing.T) (*HTTPServer, eventlog.Store) {
	t.Helper()
	store, err := eventlog.New(filepath.Join(t.TempDir(), "events"))
	require.NoError(t, err)

	registry := tool.NewRegistry()
	executor := tool.NewExecutor(registry, 2)
	fanout := subscription.NewFanout(64)

	supervisor := session.NewSupervisor(context.Background(), store, registry, executor, fakeProvider{}, fanout)
	t.Cleanup(supervisor.Shutdown)

	svc := NewService(store, supervisor, fanout)
	cfg := DefaultConfig()
	cfg.EnableCORS = false
	return NewHTTPServer(cfg, svc), store
}

func createTestSession(t *testing.T, srv *HTTPServer) types.SessionID {
	t.Helper()
	body := CreateSessionParams{
		Workspace: types.WorkspaceConfig{Kind: types.WorkspaceLocal, Path: t.TempDir()},
		Default:   types.ModelRef{ProviderID: "test", ModelID: "test-model"},
	}
	encoded, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(encoded))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]types.SessionID
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp["id"]
}

func TestCreateSessionRejectsMissingWorkspace(t *testing.T) {
	srv, _ := newTestHTTPServer(t)

	body := CreateSessionParams{Default: types.ModelRef{ProviderID: "test", ModelID: "m"}}
	encoded, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(encoded))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAndGetSession(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	id := createTestSession(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id.String(), nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var meta SessionMetadata
	require.NoError(t, json.NewDecoder(w.Body).Decode(&meta))
	assert.Equal(t, id, meta.Session.ID)
}

func TestGetSessionUnknownReturnsValidationError(t *testing.T) {
	srv, _ := newTestHTTPServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/does-not-exist", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSessions(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	createTestSession(t, srv)
	createTestSession(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var summaries []types.SessionSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summaries))
	assert.Len(t, summaries, 2)
}

func TestDeleteSession(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	id := createTestSession(t, srv)

	req := httptest.NewRequest(http.MethodDelete, "/sessions/"+id.String(), nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/sessions/"+id.String(), nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendCommandSendMessageReturnsOpID(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	id := createTestSession(t, srv)

	cmd := ClientCommand{Kind: CommandSendMessage, Content: []types.Block{{Kind: types.BlockText, Text: "hello"}}}
	encoded, _ := json.Marshal(cmd)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id.String()+"/commands", bytes.NewReader(encoded))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var result CommandResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.NotEmpty(t, result.OpID)
}

func TestSendCommandRejectsUnsupportedVariant(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	id := createTestSession(t, srv)

	cmd := ClientCommand{Kind: CommandExecuteBashCommand}
	encoded, _ := json.Marshal(cmd)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id.String()+"/commands", bytes.NewReader(encoded))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscribeEventsStreamsBacklog(t *testing.T) {
	srv, _ := newTestHTTPServer(t)
	id := createTestSession(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+id.String()+"/events?from=1", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.Router().ServeHTTP(w, req)
		close(done)
	}()

	<-ctx.Done()
	<-done

	assert.Contains(t, w.Body.String(), "event: event")
	assert.Contains(t, w.Body.String(), "session_created")
}
