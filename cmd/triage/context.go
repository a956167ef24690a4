package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"triage/internal/config"
	"triage/internal/directory"
	"triage/internal/identity"
	"triage/internal/locks"
	"triage/internal/logging"
	"triage/internal/services/backend"
	"triage/internal/session"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

// appServices bundles the wired client-side components one command
// invocation works with.
type appServices struct {
	cfg      *config.Config
	client   *backend.Client
	registry *locks.Registry
	dir      *directory.Directory
	user     identity.User
	coord    *session.Coordinator
}

func (c *commandContext) newServices() (*appServices, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger := c.ensureLogger()

	client := backend.New(cfg, logger)
	registry := locks.NewRegistry(client, logger)
	dir := directory.New(client, logger, directory.WithPageSize(cfg.Backend.PageSize))
	user := identity.FromConfig(cfg)
	coord := session.New(client, registry, dir, user, logger,
		session.WithBatchConcurrency(cfg.Review.BatchConcurrency))

	return &appServices{
		cfg:      cfg,
		client:   client,
		registry: registry,
		dir:      dir,
		user:     user,
		coord:    coord,
	}, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
