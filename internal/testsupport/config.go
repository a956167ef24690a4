package testsupport

import (
	"path/filepath"
	"testing"

	"triage/internal/config"
)

// ConfigOption allows callers to customize the generated test
// configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per
// test and a deterministic reviewer identity.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Identity.UserID = "reviewer-1"
	cfg.Identity.Roles = []string{"reviewer"}

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithBackendURL points the config at a test server.
func WithBackendURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Backend.BaseURL = url
	}
}

// WithUser overrides the reviewer identity.
func WithUser(userID string, roles ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Identity.UserID = userID
		if len(roles) > 0 {
			cfg.Identity.Roles = roles
		}
	}
}
