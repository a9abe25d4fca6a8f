package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPaths(t *testing.T) *Paths {
	t.Helper()
	return &Paths{Config: t.TempDir()}
}

func TestLoadDefaultsOnly(t *testing.T) {
	c, err := Load(testPaths(t))
	require.NoError(t, err)

	info, ok := c.Lookup("anthropic")
	require.True(t, ok)
	assert.Equal(t, "Anthropic", info.Name)
	assert.Equal(t, "anthropic", info.APIFormat)
	assert.NotNil(t, info.OAuth)
	assert.Equal(t, "https://console.anthropic.com/oauth/token", info.OAuth.TokenURL)

	_, ok = c.Lookup("nonexistent")
	assert.False(t, ok)
}

func TestLoadResolveModelByIDAndAlias(t *testing.T) {
	c, err := Load(testPaths(t))
	require.NoError(t, err)

	m, ok := c.ResolveModel("anthropic", "claude-sonnet-4-20250514")
	require.True(t, ok)
	assert.True(t, m.Recommended)

	m, ok = c.ResolveModel("anthropic", "sonnet")
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet-4-20250514", m.ID)

	_, ok = c.ResolveModel("anthropic", "no-such-model")
	assert.False(t, ok)

	_, ok = c.ResolveModel("openai", "claude-sonnet-4-20250514")
	assert.False(t, ok, "model lookup must not cross providers")
}

func TestLoadProviderOverlayReplacesByID(t *testing.T) {
	paths := testPaths(t)
	overlay := `
[[provider]]
id = "anthropic"
name = "Anthropic (self-hosted)"
api_format = "anthropic"
auth_schemes = ["api_key"]
base_url = "https://anthropic.internal.example"
env_var = "ANTHROPIC_API_KEY"

[[provider]]
id = "custom"
name = "Custom"
api_format = "openai"
auth_schemes = ["api_key"]
env_var = "CUSTOM_API_KEY"
`
	require.NoError(t, os.WriteFile(filepath.Join(paths.Config, "providers.toml"), []byte(overlay), 0o644))

	c, err := Load(paths)
	require.NoError(t, err)

	info, ok := c.Lookup("anthropic")
	require.True(t, ok)
	assert.Equal(t, "Anthropic (self-hosted)", info.Name)
	assert.Equal(t, "https://anthropic.internal.example", info.BaseURL)
	assert.Nil(t, info.OAuth, "overlay entry dropped oauth fields, so merged entry must not carry the default's")

	info, ok = c.Lookup("custom")
	require.True(t, ok)
	assert.Equal(t, "Custom", info.Name)

	_, ok = c.Lookup("openai")
	assert.True(t, ok, "providers not named in the overlay keep their defaults")
}

func TestLoadModelOverlayReplacesByProviderAndID(t *testing.T) {
	paths := testPaths(t)
	overlay := `
[[model]]
provider = "anthropic"
id = "claude-sonnet-4-20250514"
aliases = ["sonnet", "default"]
recommended = false

[[model]]
provider = "anthropic"
id = "claude-opus-4-internal"
aliases = ["opus"]
recommended = true
`
	require.NoError(t, os.WriteFile(filepath.Join(paths.Config, "models.toml"), []byte(overlay), 0o644))

	c, err := Load(paths)
	require.NoError(t, err)

	m, ok := c.ResolveModel("anthropic", "claude-sonnet-4-20250514")
	require.True(t, ok)
	assert.False(t, m.Recommended, "overlay entry must replace, not merge with, the default")
	assert.Contains(t, m.Aliases, "default")

	m, ok = c.ResolveModel("anthropic", "opus")
	require.True(t, ok)
	assert.Equal(t, "claude-opus-4-internal", m.ID)

	_, ok = c.ResolveModel("anthropic", "haiku")
	assert.True(t, ok, "models absent from the overlay keep their defaults")
}

func TestLoadMalformedOverlayFails(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, os.WriteFile(filepath.Join(paths.Config, "providers.toml"), []byte("not valid toml [["), 0o644))

	_, err := Load(paths)
	assert.Error(t, err)
}

func TestLoadEnvMissingFileIsNotError(t *testing.T) {
	paths := testPaths(t)
	assert.NoError(t, LoadEnv(paths))
}

func TestLoadEnvDoesNotOverrideExistingVariable(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, os.WriteFile(paths.EnvPath(), []byte("AGENTRUND_TEST_VAR=from-dotenv\n"), 0o644))

	t.Setenv("AGENTRUND_TEST_VAR", "from-shell")
	require.NoError(t, LoadEnv(paths))
	assert.Equal(t, "from-shell", os.Getenv("AGENTRUND_TEST_VAR"))
}

func TestLoadEnvLoadsUnsetVariable(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, os.WriteFile(paths.EnvPath(), []byte("AGENTRUND_TEST_VAR_2=from-dotenv\n"), 0o644))

	os.Unsetenv("AGENTRUND_TEST_VAR_2")
	require.NoError(t, LoadEnv(paths))
	assert.Equal(t, "from-dotenv", os.Getenv("AGENTRUND_TEST_VAR_2"))
}
