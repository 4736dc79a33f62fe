package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all process configuration. It is parsed once at startup and
// treated as immutable for the process lifetime.
type Config struct {
	HTTPAddr string   `env:"HTTP_ADDR" envDefault:":8080"`
	Database Database `envPrefix:"PG_"`
	Auth     Auth     `envPrefix:"AUTH_"`
	Hash     Hash     `envPrefix:"HASH_"`
	Rate     Rate     `envPrefix:"RATE_"`
}

// Database contains PostgreSQL connection parameters.
type Database struct {
	DSN string `env:"DSN"`
}

// Auth contains token signing material and lifetimes.
type Auth struct {
	Secret     string        `env:"SECRET"`
	Issuer     string        `env:"ISSUER" envDefault:"rexcards"`
	Audience   string        `env:"AUDIENCE" envDefault:"rexcards-api"`
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"336h"`
}

// Hash contains argon2id cost parameters and scheduling limits.
type Hash struct {
	MemoryKiB      uint32 `env:"MEMORY_KIB" envDefault:"65536"`
	Iterations     uint32 `env:"ITERATIONS" envDefault:"3"`
	Parallelism    uint8  `env:"PARALLELISM" envDefault:"4"`
	MaxConcurrent  int64  `env:"MAX_CONCURRENT" envDefault:"4"`
	MaxPasswordLen int    `env:"MAX_PASSWORD_LEN" envDefault:"512"`
}

// Rate contains HTTP rate limiting knobs.
type Rate struct {
	Burst     int `env:"BURST" envDefault:"20"`
	PerSecond int `env:"PER_SECOND" envDefault:"10"`
}

// Load parses configuration from REXCARDS_-prefixed environment variables.
func Load() (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "REXCARDS_"}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.Secret == "" {
		return errors.New("config: auth secret is required")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("config: token lifetimes must be positive")
	}
	if c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		return errors.New("config: refresh TTL must exceed access TTL")
	}
	if c.Hash.MemoryKiB == 0 || c.Hash.Iterations == 0 || c.Hash.Parallelism == 0 {
		return errors.New("config: argon2 cost parameters must be positive")
	}
	if c.Hash.MaxConcurrent <= 0 {
		return errors.New("config: hash concurrency bound must be positive")
	}
	return nil
}
