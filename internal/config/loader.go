package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envPrefix mirrors the teacher's POLYBOT_ prefix, scoped to this scanner.
const envPrefix = "ENGAME_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ENGAME_*-prefixed environment variable
// overrides declared via `env:"..."` struct tags, and returns the final
// Config. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	// Load a .env file if present; silently ignore if missing.
	_ = godotenv.Load()

	opts := env.Options{Prefix: envPrefix}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("config: apply env overrides: %w", err)
	}

	return &cfg, nil
}
