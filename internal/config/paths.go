// Package config provides configuration loading and path management.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for agentrund's data.
type Paths struct {
	Data   string // ~/.local/share/agentrund
	Config string // ~/.config/agentrund
	Cache  string // ~/.cache/agentrund
	State  string // ~/.local/state/agentrund
}

// GetPaths returns the standard paths for agentrund's data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "agentrund"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "agentrund"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "agentrund"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "agentrund"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath returns the path to the event log's base directory.
func (p *Paths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

// AuthPath returns the path to the provider-auth credential store file
// (internal/providerauth.Store).
func (p *Paths) AuthPath() string {
	return filepath.Join(p.Data, "auth.json")
}

// EnvPath returns the path to the optional .env overlay godotenv loads
// credential defaults from.
func (p *Paths) EnvPath() string {
	return filepath.Join(p.Config, ".env")
}

// ProviderCatalogPath returns the path to the user's provider catalog
// overlay (§6: TOML, merged over the embedded defaults).
func (p *Paths) ProviderCatalogPath() string {
	return filepath.Join(p.Config, "providers.toml")
}

// ModelCatalogPath returns the path to the user's model catalog overlay.
func (p *Paths) ModelCatalogPath() string {
	return filepath.Join(p.Config, "models.toml")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}
