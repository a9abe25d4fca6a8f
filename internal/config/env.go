package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads paths.EnvPath() into the process environment, if present,
// so internal/providerauth's environment-variable credential fallback sees
// defaults an operator keeps in a .env file instead of a shell profile. A
// missing file is not an error; an existing variable is never overwritten
// (godotenv's default behavior), so a value already exported in the
// environment always wins.
func LoadEnv(paths *Paths) error {
	if _, err := os.Stat(paths.EnvPath()); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(paths.EnvPath())
}
