package config

const (
	defaultConfigPath           = "~/.config/handreceipt/config.toml"
	defaultStateDir             = "~/.local/share/handreceipt"
	defaultLogDir               = "~/.local/share/handreceipt/logs"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultStorageKey           = "@transfer_queue"
	defaultRemoteTimeoutSeconds = 30
	defaultMaxRetries           = 3
	defaultRetryCooldownSeconds = 300
	defaultProbeIntervalSeconds = 15
	defaultProbeTimeoutSeconds  = 5
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultNotifyTimeout        = 10
)

// Storage backends understood by the queue store.
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Storage: Storage{
			Backend: StorageSQLite,
			Key:     defaultStorageKey,
		},
		Remote: Remote{
			TimeoutSeconds: defaultRemoteTimeoutSeconds,
		},
		Sync: Sync{
			MaxRetries:           defaultMaxRetries,
			RetryCooldownSeconds: defaultRetryCooldownSeconds,
			ProbeIntervalSeconds: defaultProbeIntervalSeconds,
			ProbeTimeoutSeconds:  defaultProbeTimeoutSeconds,
			Netlink:              true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Sync:           true,
			Exhausted:      true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
