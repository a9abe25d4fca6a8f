package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/opencode-ai/agentrund/internal/providerauth"
)

//go:embed defaults/providers.toml
var defaultProvidersTOML []byte

//go:embed defaults/models.toml
var defaultModelsTOML []byte

// ProviderEntry is one row of the provider catalog (§6: "id, name,
// api_format, auth_schemes[], base_url?").
type ProviderEntry struct {
	ID          string   `toml:"id"`
	Name        string   `toml:"name"`
	APIFormat   string   `toml:"api_format"`
	AuthSchemes []string `toml:"auth_schemes"`
	BaseURL     string   `toml:"base_url,omitempty"`
	EnvVar      string   `toml:"env_var,omitempty"`

	OAuthClientID     string   `toml:"oauth_client_id,omitempty"`
	OAuthClientSecret string   `toml:"oauth_client_secret,omitempty"`
	OAuthAuthURL      string   `toml:"oauth_auth_url,omitempty"`
	OAuthTokenURL     string   `toml:"oauth_token_url,omitempty"`
	OAuthRedirectURL  string   `toml:"oauth_redirect_url,omitempty"`
	OAuthScopes       []string `toml:"oauth_scopes,omitempty"`
}

// ModelEntry is one row of the model catalog (§6: "provider, id, aliases[],
// recommended, parameters?").
type ModelEntry struct {
	Provider    string         `toml:"provider"`
	ID          string         `toml:"id"`
	Aliases     []string       `toml:"aliases,omitempty"`
	Recommended bool           `toml:"recommended,omitempty"`
	Parameters  map[string]any `toml:"parameters,omitempty"`
}

type providerFile struct {
	Provider []ProviderEntry `toml:"provider"`
}

type modelFile struct {
	Model []ModelEntry `toml:"model"`
}

// Catalog is the merged provider+model catalog, keyed for lookup. It
// implements providerauth.Catalog directly, so internal/providerauth never
// needs to know this package exists.
type Catalog struct {
	providers map[string]ProviderEntry
	models    []ModelEntry
}

// Lookup implements providerauth.Catalog.
func (c *Catalog) Lookup(providerID string) (providerauth.ProviderInfo, bool) {
	p, ok := c.providers[providerID]
	if !ok {
		return providerauth.ProviderInfo{}, false
	}
	return p.toProviderInfo(), true
}

func (p ProviderEntry) toProviderInfo() providerauth.ProviderInfo {
	schemes := make([]providerauth.AuthScheme, len(p.AuthSchemes))
	for i, s := range p.AuthSchemes {
		schemes[i] = providerauth.AuthScheme(s)
	}
	info := providerauth.ProviderInfo{
		ID:          p.ID,
		Name:        p.Name,
		APIFormat:   p.APIFormat,
		AuthSchemes: schemes,
		BaseURL:     p.BaseURL,
		EnvVar:      p.EnvVar,
	}
	if p.OAuthTokenURL != "" {
		info.OAuth = &providerauth.OAuthEndpoints{
			ClientID:     p.OAuthClientID,
			ClientSecret: p.OAuthClientSecret,
			AuthURL:      p.OAuthAuthURL,
			TokenURL:     p.OAuthTokenURL,
			RedirectURL:  p.OAuthRedirectURL,
			Scopes:       p.OAuthScopes,
		}
	}
	return info
}

// Providers returns every provider entry as the merged catalog's backing
// map, keyed by ID; it carries no order.
func (c *Catalog) Providers() map[string]ProviderEntry {
	return c.providers
}

// ResolveModel finds a model by exact ID or alias within providerID's
// models.
func (c *Catalog) ResolveModel(providerID, modelID string) (ModelEntry, bool) {
	for _, m := range c.models {
		if m.Provider != providerID {
			continue
		}
		if m.ID == modelID {
			return m, true
		}
		for _, alias := range m.Aliases {
			if alias == modelID {
				return m, true
			}
		}
	}
	return ModelEntry{}, false
}

// Models returns every model catalog entry.
func (c *Catalog) Models() []ModelEntry {
	return c.models
}

// Load builds a Catalog from the embedded defaults, then merges the user
// overlay at paths.ProviderCatalogPath()/ModelCatalogPath() on top, if
// present.
func Load(paths *Paths) (*Catalog, error) {
	var defaults providerFile
	if err := toml.Unmarshal(defaultProvidersTOML, &defaults); err != nil {
		return nil, fmt.Errorf("config: decode embedded provider catalog: %w", err)
	}
	var defaultModels modelFile
	if err := toml.Unmarshal(defaultModelsTOML, &defaultModels); err != nil {
		return nil, fmt.Errorf("config: decode embedded model catalog: %w", err)
	}

	c := &Catalog{providers: make(map[string]ProviderEntry), models: defaultModels.Model}
	for _, p := range defaults.Provider {
		c.providers[p.ID] = p
	}

	if err := c.mergeProviderOverlay(paths.ProviderCatalogPath()); err != nil {
		return nil, err
	}
	if err := c.mergeModelOverlay(paths.ModelCatalogPath()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) mergeProviderOverlay(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read provider overlay: %w", err)
	}
	var overlay providerFile
	if err := toml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: decode provider overlay %s: %w", path, err)
	}
	for _, p := range overlay.Provider {
		c.providers[p.ID] = p
	}
	return nil
}

func (c *Catalog) mergeModelOverlay(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read model overlay: %w", err)
	}
	var overlay modelFile
	if err := toml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: decode model overlay %s: %w", path, err)
	}
	for _, m := range overlay.Model {
		replaced := false
		for i, existing := range c.models {
			if existing.Provider == m.Provider && existing.ID == m.ID {
				c.models[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			c.models = append(c.models, m)
		}
	}
	return nil
}
