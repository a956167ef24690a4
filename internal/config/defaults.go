package config

const (
	defaultStateDir         = "~/.local/share/triage/state"
	defaultLogDir           = "~/.local/share/triage/logs"
	defaultBackendBaseURL   = "http://127.0.0.1:8470"
	defaultRequestTimeout   = 15
	defaultPageSize         = 50
	defaultTickInterval     = 5
	defaultQueueStaleAfter  = 60
	defaultLockStaleAfter   = 30
	defaultItemStaleAfter   = 45
	defaultBatchConcurrency = 4
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Backend: Backend{
			BaseURL:        defaultBackendBaseURL,
			RequestTimeout: defaultRequestTimeout,
			PageSize:       defaultPageSize,
		},
		Identity: Identity{
			Roles: []string{"reviewer"},
		},
		Refresh: Refresh{
			TickInterval:    defaultTickInterval,
			QueueStaleAfter: defaultQueueStaleAfter,
			LockStaleAfter:  defaultLockStaleAfter,
			ItemStaleAfter:  defaultItemStaleAfter,
		},
		Review: Review{
			BatchConcurrency: defaultBatchConcurrency,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
