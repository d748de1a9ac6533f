// Package config defines the plain JSON-tagged configuration struct
// wiring the storage directory, chain identity, and execution envelope
// together, following node/config.go's shape.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the top-level node configuration.
type Config struct {
	DataDir      string `json:"data_dir"`
	ChainIDHex   string `json:"chain_id_hex"`
	LogLevel     string `json:"log_level"`
	BaseOpsPrice uint32 `json:"base_ops_price"`
	OpsBudget    uint32 `json:"external_ops_budget"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultDataDir returns $HOME/.cube-rollup, falling back to a relative
// directory if the home directory can't be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".cube-rollup"
	}
	return filepath.Join(home, ".cube-rollup")
}

// DefaultConfig returns conservative defaults for local development.
func DefaultConfig() Config {
	return Config{
		DataDir:      DefaultDataDir(),
		ChainIDHex:   "",
		LogLevel:     "info",
		BaseOpsPrice: 1,
		OpsBudget:    1_000_000,
	}
}

// Validate checks cfg for structurally invalid values.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if strings.TrimSpace(cfg.ChainIDHex) == "" {
		return errors.New("chain_id_hex is required")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.BaseOpsPrice == 0 {
		return errors.New("base_ops_price must be > 0")
	}
	if cfg.OpsBudget == 0 {
		return errors.New("external_ops_budget must be > 0")
	}
	return nil
}
