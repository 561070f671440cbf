// Package config loads process-level runtime settings from the
// environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// SecretPrefix marks environment variables whose values must never
// appear in any output surface: CATALYST_SECRET_API_KEY=x registers
// the secret "api_key".
const SecretPrefix = "CATALYST_SECRET_"

// Config holds the engine limits and search roots. All fields have
// working defaults; the environment only overrides.
type Config struct {
	// EvalTimeout bounds a single expression evaluation.
	EvalTimeout time.Duration `env:"CATALYST_EVAL_TIMEOUT" envDefault:"10s"`

	// MaxDepth bounds sub-playbook invocation nesting.
	MaxDepth int `env:"CATALYST_MAX_DEPTH" envDefault:"10"`

	// PlaybookRoots are the directories searched for bare playbook
	// identifiers, in order. Colon-separated.
	PlaybookRoots []string `env:"CATALYST_PLAYBOOK_ROOTS" envSeparator:":"`

	// ProtocolRoots maps path-protocol schemes to their root
	// directories, e.g. "kb=/srv/kb,templates=/srv/templates".
	ProtocolRoots map[string]string `env:"CATALYST_PROTOCOL_ROOTS" envKeyValSeparator:"="`
}

// Secrets returns the value of every CATALYST_SECRET_* environment
// variable, keyed by the lowercased name suffix.
func Secrets() map[string]string {
	out := map[string]string{}
	for _, kv := range os.Environ() {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, SecretPrefix) || val == "" {
			continue
		}
		out[strings.ToLower(strings.TrimPrefix(key, SecretPrefix))] = val
	}
	return out
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.EvalTimeout <= 0 {
		return nil, fmt.Errorf("CATALYST_EVAL_TIMEOUT must be positive, got %s", cfg.EvalTimeout)
	}
	if cfg.MaxDepth <= 0 {
		return nil, fmt.Errorf("CATALYST_MAX_DEPTH must be positive, got %d", cfg.MaxDepth)
	}
	return &cfg, nil
}
