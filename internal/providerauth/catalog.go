package providerauth

// AuthScheme is one way a provider accepts credentials, matching the TOML
// provider catalog's `auth_schemes[]` (§6).
type AuthScheme string

const (
	AuthSchemeAPIKey AuthScheme = "api_key"
	AuthSchemeOAuth2 AuthScheme = "oauth2"
)

// OAuthEndpoints is the static, provider-specific half of an OAuth2 flow —
// everything that doesn't vary per user, grounded on haasonsaas-nexus's
// GenericOAuthProvider construction (internal/auth/oauth.go).
type OAuthEndpoints struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

// ProviderInfo is the provider-auth-relevant slice of one TOML provider
// catalog entry (§6: `id, name, api_format, auth_schemes[], base_url?`).
// internal/config owns parsing the catalog file; this is the shape it hands
// to a Resolver.
type ProviderInfo struct {
	ID          string
	Name        string
	APIFormat   string
	AuthSchemes []AuthScheme
	BaseURL     string

	// EnvVar is the environment variable InitializeProviders-style fallback
	// checks when the credential store has nothing for this provider,
	// grounded on telnet2-opencode's internal/provider/registry.go
	// getProviderCredentials.
	EnvVar string

	OAuth *OAuthEndpoints
}

func (p ProviderInfo) supports(scheme AuthScheme) bool {
	for _, s := range p.AuthSchemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// Catalog resolves a provider ID to its static info. internal/config's
// loaded provider catalog satisfies this via a thin adapter.
type Catalog interface {
	Lookup(providerID string) (ProviderInfo, bool)
}

// StaticCatalog is the simplest Catalog: a fixed map, usable directly in
// tests or by a caller that has already loaded the TOML catalog into
// memory.
type StaticCatalog map[string]ProviderInfo

func (c StaticCatalog) Lookup(id string) (ProviderInfo, bool) {
	p, ok := c[id]
	return p, ok
}
