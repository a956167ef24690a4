package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks configuration invariants that normalization cannot
// repair.
func (c *Config) Validate() error {
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateIdentity(); err != nil {
		return err
	}
	if err := c.validateRefresh(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBackend() error {
	parsed, err := url.Parse(c.Backend.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("backend.base_url: %q is not an absolute URL", c.Backend.BaseURL)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("backend.base_url: unsupported scheme %q", parsed.Scheme)
	}
	return nil
}

func (c *Config) validateIdentity() error {
	if strings.TrimSpace(c.Identity.UserID) == "" {
		return fmt.Errorf("identity.user_id is required")
	}
	return nil
}

func (c *Config) validateRefresh() error {
	// Staleness intervals shorter than the tick would make every tick
	// a refresh, defeating the cadence split.
	for name, stale := range map[string]int{
		"refresh.queue_stale_after": c.Refresh.QueueStaleAfter,
		"refresh.lock_stale_after":  c.Refresh.LockStaleAfter,
		"refresh.item_stale_after":  c.Refresh.ItemStaleAfter,
	} {
		if stale < c.Refresh.TickInterval {
			return fmt.Errorf("%s (%ds) must not be shorter than refresh.tick_interval (%ds)", name, stale, c.Refresh.TickInterval)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
