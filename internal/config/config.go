package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Backend contains connection settings for the review backend API.
type Backend struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	RequestTimeout int    `toml:"request_timeout"`
	PageSize       int    `toml:"page_size"`
}

// Identity describes the reviewer this client acts as.
type Identity struct {
	UserID string   `toml:"user_id"`
	Roles  []string `toml:"roles"`
}

// Refresh contains auto-refresh scheduler timing. The tick interval is
// deliberately much shorter than the staleness intervals so the check
// cadence and the actual refresh cadence stay decoupled.
type Refresh struct {
	TickInterval    int `toml:"tick_interval"`
	QueueStaleAfter int `toml:"queue_stale_after"`
	LockStaleAfter  int `toml:"lock_stale_after"`
	ItemStaleAfter  int `toml:"item_stale_after"`
}

// Review contains session coordinator tuning.
type Review struct {
	BatchConcurrency int `toml:"batch_concurrency"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the triage console.
//
// Sections by subsystem:
//   - Paths: local state and log directories
//   - Backend: review backend base URL, token, timeouts, paging
//   - Identity: reviewer id and role set
//   - Refresh: auto-refresh tick and staleness intervals
//   - Review: batch labeling concurrency
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Backend  Backend  `toml:"backend"`
	Identity Identity `toml:"identity"`
	Refresh  Refresh  `toml:"refresh"`
	Review   Review   `toml:"review"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default
// configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/triage/config.toml")
}

// Load locates, parses, and validates a configuration file. The
// returned config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("triage.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories when absent.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		if strings.HasPrefix(trimmed, "~/") {
			return filepath.Join(home, trimmed[2:]), nil
		}
		return "", fmt.Errorf("unsupported home expansion in %q", trimmed)
	}
	return filepath.Abs(trimmed)
}

// ExpandPath exposes path expansion for callers outside the package.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path,
// refusing to overwrite an existing file.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
