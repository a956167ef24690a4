package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBackend()
	c.normalizeIdentity()
	c.normalizeRefresh()
	c.normalizeReview()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBackend() {
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = defaultBackendBaseURL
	}
	c.Backend.Token = strings.TrimSpace(c.Backend.Token)
	if c.Backend.RequestTimeout <= 0 {
		c.Backend.RequestTimeout = defaultRequestTimeout
	}
	if c.Backend.PageSize <= 0 {
		c.Backend.PageSize = defaultPageSize
	}
}

func (c *Config) normalizeIdentity() {
	c.Identity.UserID = strings.TrimSpace(c.Identity.UserID)
	roles := make([]string, 0, len(c.Identity.Roles))
	for _, role := range c.Identity.Roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		roles = []string{"reviewer"}
	}
	c.Identity.Roles = roles
}

func (c *Config) normalizeRefresh() {
	if c.Refresh.TickInterval <= 0 {
		c.Refresh.TickInterval = defaultTickInterval
	}
	if c.Refresh.QueueStaleAfter <= 0 {
		c.Refresh.QueueStaleAfter = defaultQueueStaleAfter
	}
	if c.Refresh.LockStaleAfter <= 0 {
		c.Refresh.LockStaleAfter = defaultLockStaleAfter
	}
	if c.Refresh.ItemStaleAfter <= 0 {
		c.Refresh.ItemStaleAfter = defaultItemStaleAfter
	}
}

func (c *Config) normalizeReview() {
	if c.Review.BatchConcurrency <= 0 {
		c.Review.BatchConcurrency = defaultBatchConcurrency
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
