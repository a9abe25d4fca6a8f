package workspacebackend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/agentrund/pkg/types"
)

func TestLocalWorkspaceWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	b, err := New(types.WorkspaceConfig{Kind: types.WorkspaceLocal, Path: dir})
	require.NoError(t, err)

	_, err = b.Invoke(context.Background(), "workspace_write", map[string]any{
		"path":    "notes/hello.txt",
		"content": "hello workspace\n",
	})
	require.NoError(t, err)

	out, err := b.Invoke(context.Background(), "workspace_read", map[string]any{"path": "notes/hello.txt"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "hello workspace")
}

func TestLocalWorkspaceListsEntries(t *testing.T) {
	dir := t.TempDir()
	b, err := New(types.WorkspaceConfig{Kind: types.WorkspaceLocal, Path: dir})
	require.NoError(t, err)

	_, err = b.Invoke(context.Background(), "workspace_write", map[string]any{"path": "a.txt", "content": "x"})
	require.NoError(t, err)

	out, err := b.Invoke(context.Background(), "workspace_ls", map[string]any{"path": ""})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "a.txt")
}

func TestLocalWorkspaceRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	b, err := New(types.WorkspaceConfig{Kind: types.WorkspaceLocal, Path: dir})
	require.NoError(t, err)

	_, err = b.Invoke(context.Background(), "workspace_read", map[string]any{"path": "../../etc/passwd"})
	require.Error(t, err)
}

func TestNewRejectsMissingLocalPath(t *testing.T) {
	_, err := New(types.WorkspaceConfig{Kind: types.WorkspaceLocal})
	assert.Error(t, err)
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(types.WorkspaceConfig{Kind: "bogus"})
	assert.Error(t, err)
}

func TestRemoteWorkspaceReadWriteList(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch {
		case r.URL.Path == "/files/read":
			w.Write([]byte(`{"content":"remote content","lines":1,"totalLines":1}`))
		case r.URL.Path == "/files/write":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/files/list":
			w.Write([]byte(`{"entries":["a.txt","b.txt"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	b, err := New(types.WorkspaceConfig{Kind: types.WorkspaceRemote, Address: srv.URL, Auth: "tok-123"})
	require.NoError(t, err)

	out, err := b.Invoke(context.Background(), "workspace_read", map[string]any{"path": "f.txt"})
	require.NoError(t, err)
	assert.Equal(t, "remote content", out.Text)
	assert.Equal(t, "Bearer tok-123", gotAuth)

	_, err = b.Invoke(context.Background(), "workspace_write", map[string]any{"path": "f.txt", "content": "x"})
	require.NoError(t, err)

	out, err = b.Invoke(context.Background(), "workspace_ls", map[string]any{"path": ""})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "a.txt")
}

func TestRemoteWorkspaceSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	b, err := New(types.WorkspaceConfig{Kind: types.WorkspaceRemote, Address: srv.URL})
	require.NoError(t, err)

	_, err = b.Invoke(context.Background(), "workspace_read", map[string]any{"path": "f.txt"})
	require.Error(t, err)
}

func TestNewRejectsMissingRemoteAddress(t *testing.T) {
	_, err := New(types.WorkspaceConfig{Kind: types.WorkspaceRemote})
	assert.Error(t, err)
}
