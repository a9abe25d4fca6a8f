// Package config loads agentrund's two TOML catalogs — providers and
// models (§6) — plus the XDG-standard data/config/cache/state paths every
// other package roots its own files under.
//
// # Catalog loading
//
// Load reads the embedded default catalogs first, then merges a user
// overlay from Paths.Config (providers.toml, models.toml) on top, keyed by
// provider/model ID: an overlay entry with the same ID replaces the
// default entirely, and an overlay entry with a new ID is appended. This
// mirrors the layering telnet2-opencode's own config.Load applies to its
// JSON sources, generalized to this service's TOML catalogs instead of
// opencode.json.
//
// # Credential defaults
//
// LoadEnv loads Paths.EnvPath() (a .env file) via github.com/joho/godotenv
// into the process environment before internal/providerauth's resolver
// ever calls os.Getenv, so an operator can keep default API keys in one
// file instead of exporting them in a shell profile.
//
// # Hot reload
//
// Watcher follows telnet2-opencode's internal/vcs.Watcher shape: an
// fsnotify.Watcher on Paths.Config, reloading and re-merging the catalogs
// whenever providers.toml or models.toml changes, and invoking a callback
// with the new Catalog.
package config
