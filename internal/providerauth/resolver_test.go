package providerauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/agentrund/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "auth.json"))
}

func TestResolveUnknownProviderFails(t *testing.T) {
	r := NewResolver(StaticCatalog{}, newTestStore(t))
	_, err := r.Resolve(context.Background(), types.ModelRef{ProviderID: "nope", ModelID: "m"})
	require.Error(t, err)
}

func TestResolveNoCredentialAnywhereFails(t *testing.T) {
	catalog := StaticCatalog{"anthropic": {ID: "anthropic", APIFormat: "anthropic"}}
	r := NewResolver(catalog, newTestStore(t))
	_, err := r.Resolve(context.Background(), types.ModelRef{ProviderID: "anthropic", ModelID: "claude"})
	require.Error(t, err)
	var noCred *ErrNoCredential
	require.ErrorAs(t, err, &noCred)
}

func TestResolveEnvFallbackShapesAnthropicHeaders(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-test-123")
	catalog := StaticCatalog{"anthropic": {
		ID: "anthropic", APIFormat: "anthropic", EnvVar: "TEST_ANTHROPIC_KEY", BaseURL: "https://api.anthropic.com",
	}}
	r := NewResolver(catalog, newTestStore(t))

	directive, err := r.Resolve(context.Background(), types.ModelRef{ProviderID: "anthropic", ModelID: "claude"})
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", directive.Headers["x-api-key"])
	assert.Equal(t, "2023-06-01", directive.Headers["anthropic-version"])
	assert.Equal(t, "https://api.anthropic.com", directive.BaseURL)
	assert.Equal(t, "api_key:anthropic", directive.AuthSource)
}

func TestResolveStoredAPIKeyUsesBearerByDefault(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put("openai", Credential{Kind: CredentialAPIKey, APIKey: "sk-openai"}))

	catalog := StaticCatalog{"openai": {ID: "openai", APIFormat: "openai"}}
	r := NewResolver(catalog, store)

	directive, err := r.Resolve(context.Background(), types.ModelRef{ProviderID: "openai", ModelID: "gpt"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-openai", directive.Headers["Authorization"])
}

func TestResolveOAuth2RefreshesExpiredToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-access-token",
			"refresh_token": "fresh-refresh-token",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	store := newTestStore(t)
	require.NoError(t, store.Put("oauthprov", Credential{
		Kind: CredentialOAuth2,
		OAuth2: &OAuth2Creds{
			AccessToken:  "stale-access-token",
			RefreshToken: "stale-refresh-token",
			ExpiresAt:    types.Timestamp(time.Now().Add(-time.Hour).UnixMilli()),
		},
	}))

	catalog := StaticCatalog{"oauthprov": {
		ID: "oauthprov", APIFormat: "generic",
		OAuth: &OAuthEndpoints{ClientID: "client", TokenURL: srv.URL},
	}}
	r := NewResolver(catalog, store)

	directive, err := r.Resolve(context.Background(), types.ModelRef{ProviderID: "oauthprov", ModelID: "m"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh-access-token", directive.Headers["Authorization"])
	assert.Equal(t, "oauth2:oauthprov", directive.AuthSource)

	cred, ok, err := store.Get("oauthprov")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh-access-token", cred.OAuth2.AccessToken)
}

func TestOnAuthErrorRetriesOnceOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "rotated-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	store := newTestStore(t)
	require.NoError(t, store.Put("oauthprov", Credential{
		Kind: CredentialOAuth2,
		OAuth2: &OAuth2Creds{
			AccessToken:  "still-valid-but-rejected",
			RefreshToken: "refresh-tok",
			ExpiresAt:    types.Timestamp(time.Now().Add(time.Hour).UnixMilli()),
		},
	}))
	catalog := StaticCatalog{"oauthprov": {
		ID: "oauthprov", APIFormat: "generic",
		OAuth: &OAuthEndpoints{ClientID: "client", TokenURL: srv.URL},
	}}
	r := NewResolver(catalog, store)

	directive, err := r.Resolve(context.Background(), types.ModelRef{ProviderID: "oauthprov", ModelID: "m"})
	require.NoError(t, err)
	require.NotNil(t, directive.OnAuthError)

	action, err := directive.OnAuthError(context.Background(), http.StatusUnauthorized, nil)
	require.NoError(t, err)
	assert.Equal(t, RetryOnce, action)
}

func TestApplyInstructionPolicies(t *testing.T) {
	override := AuthDirective{InstructionPolicy: InstructionOverride, Instruction: "override text"}
	assert.Equal(t, "override text", override.ApplyInstruction("original"))

	prefix := AuthDirective{InstructionPolicy: InstructionPrefix, Instruction: "prelude"}
	assert.Equal(t, "prelude\n\noriginal", prefix.ApplyInstruction("original"))

	defaultIfEmpty := AuthDirective{InstructionPolicy: InstructionDefaultIfEmpty, Instruction: "fallback"}
	assert.Equal(t, "fallback", defaultIfEmpty.ApplyInstruction(""))
	assert.Equal(t, "original", defaultIfEmpty.ApplyInstruction("original"))

	none := AuthDirective{}
	assert.Equal(t, "original", none.ApplyInstruction("original"))
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "auth.json")
	store := NewStore(path)
	require.NoError(t, store.Put("anthropic", Credential{Kind: CredentialAPIKey, APIKey: "sk-abc"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded := NewStore(path)
	cred, ok, err := reloaded.Get("anthropic")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sk-abc", cred.APIKey)
}
