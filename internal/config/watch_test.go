package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherStartStop(t *testing.T) {
	paths := testPaths(t)

	w, err := NewWatcher(paths, func(*Catalog) {})
	require.NoError(t, err)
	w.Start()
	assert.NoError(t, w.Stop())
}

func TestWatcherReloadsOnProviderOverlayWrite(t *testing.T) {
	paths := testPaths(t)

	reloaded := make(chan *Catalog, 1)
	w, err := NewWatcher(paths, func(c *Catalog) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	overlay := `
[[provider]]
id = "anthropic"
name = "Anthropic (reloaded)"
api_format = "anthropic"
auth_schemes = ["api_key"]
env_var = "ANTHROPIC_API_KEY"
`
	require.NoError(t, os.WriteFile(filepath.Join(paths.Config, "providers.toml"), []byte(overlay), 0o644))

	select {
	case c := <-reloaded:
		info, ok := c.Lookup("anthropic")
		require.True(t, ok)
		assert.Equal(t, "Anthropic (reloaded)", info.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reload after writing providers.toml")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	paths := testPaths(t)

	reloaded := make(chan *Catalog, 1)
	w, err := NewWatcher(paths, func(c *Catalog) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(paths.Config, "unrelated.txt"), []byte("hi"), 0o644))

	select {
	case <-reloaded:
		t.Fatal("unrelated file write should not trigger a reload")
	case <-time.After(300 * time.Millisecond):
		// expected
	}
}
