// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server configures cmd/parleyd.
type Server struct {
	ListenAddr     string        `env:"PARLEY_LISTEN_ADDR" envDefault:":7070"`
	AssetPath      string        `env:"PARLEY_ASSET_PATH" envDefault:"dialogues.prly"`
	WorldPath      string        `env:"PARLEY_WORLD_PATH" envDefault:"world.yaml"`
	TickRate       time.Duration `env:"PARLEY_TICK_RATE" envDefault:"50ms"`
	SessionTimeout time.Duration `env:"PARLEY_SESSION_TIMEOUT" envDefault:"5m"`
	MaxBranchDepth int           `env:"PARLEY_MAX_BRANCH_DEPTH" envDefault:"32"`
	WatchAssets    bool          `env:"PARLEY_WATCH_ASSETS" envDefault:"true"`
	LogLevel       string        `env:"PARLEY_LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"PARLEY_LOG_FORMAT" envDefault:"json"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServer parses and checks the server configuration.
func LoadServer() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with. A zero
// SessionTimeout disables the idle timeout.
func (c Server) Validate() error {
	var errs []error
	if c.AssetPath == "" {
		errs = append(errs, errors.New("PARLEY_ASSET_PATH is required"))
	}
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("PARLEY_TICK_RATE must be positive, got %s", c.TickRate))
	}
	if c.SessionTimeout < 0 {
		errs = append(errs, fmt.Errorf("PARLEY_SESSION_TIMEOUT must not be negative, got %s", c.SessionTimeout))
	}
	if c.MaxBranchDepth < 1 {
		errs = append(errs, fmt.Errorf("PARLEY_MAX_BRANCH_DEPTH must be at least 1, got %d", c.MaxBranchDepth))
	}
	return errors.Join(errs...)
}
