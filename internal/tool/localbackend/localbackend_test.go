package localbackend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	b := New(dir)
	path := filepath.Join(dir, "hello.txt")

	out, err := b.Invoke(context.Background(), "write", map[string]any{
		"filePath": path,
		"content":  "hello world\nsecond line\n",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "bytes to")

	out, err = b.Invoke(context.Background(), "read", map[string]any{"filePath": path})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "hello world")
	assert.Contains(t, out.Text, "00001|")
}

func TestReadBlocksEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SECRET=1"), 0o644))

	b := New(dir)
	_, err := b.Invoke(context.Background(), "read", map[string]any{"filePath": path})
	require.Error(t, err)
}

func TestReadMissingFile(t *testing.T) {
	b := New(t.TempDir())
	_, err := b.Invoke(context.Background(), "read", map[string]any{"filePath": "/does/not/exist"})
	require.Error(t, err)
}

func TestBashRunsCommand(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	b := New(t.TempDir())
	out, err := b.Invoke(context.Background(), "bash", map[string]any{
		"command":     "echo hi",
		"description": "say hi",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "hi")
}

func TestBashMissingCommandIsRejected(t *testing.T) {
	b := New(t.TempDir())
	_, err := b.Invoke(context.Background(), "bash", map[string]any{"description": "nothing"})
	require.Error(t, err)
}

func TestDefinitionsListsAllFour(t *testing.T) {
	b := New(t.TempDir())
	defs, err := b.Definitions(context.Background())
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, d := range defs {
		names[d.Name] = true
	}
	assert.True(t, names["read"])
	assert.True(t, names["write"])
	assert.True(t, names["edit"])
	assert.True(t, names["bash"])
}

func TestEditReplacesUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world\n"), 0o644))

	b := New(dir)
	out, err := b.Invoke(context.Background(), "edit", map[string]any{
		"filePath":  path,
		"oldString": "world",
		"newString": "there",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "-hello world")
	assert.Contains(t, out.Text, "+hello there")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello there\n", string(content))
}

func TestEditRejectsAmbiguousMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\na\n"), 0o644))

	b := New(dir)
	_, err := b.Invoke(context.Background(), "edit", map[string]any{
		"filePath":  path,
		"oldString": "a",
		"newString": "b",
	})
	require.Error(t, err)
}

func TestEditReplaceAllReplacesEveryOccurrence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\na\n"), 0o644))

	b := New(dir)
	_, err := b.Invoke(context.Background(), "edit", map[string]any{
		"filePath":   path,
		"oldString":  "a",
		"newString":  "b",
		"replaceAll": true,
	})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "b\nb\n", string(content))
}

func TestEditMissingOldStringIsNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world\n"), 0o644))

	b := New(dir)
	_, err := b.Invoke(context.Background(), "edit", map[string]any{
		"filePath":  path,
		"oldString": "nope",
		"newString": "there",
	})
	require.Error(t, err)
}
