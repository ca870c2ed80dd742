package config

const (
	defaultStateDir             = "~/.local/share/fieldscan"
	defaultLogDir               = "~/.local/share/fieldscan/logs"
	defaultInboxDir             = "~/.local/share/fieldscan/inbox"
	defaultAPIBind              = "127.0.0.1:7717"
	defaultRemoteBaseURL        = "http://127.0.0.1:7718"
	defaultRemoteTimeoutSeconds = 15
	defaultSyncRequestTimeout   = 30
	defaultSyncCheckInterval    = 20
	defaultSyncUseNetlink       = true
	defaultSyncAutoOnReconnect  = false
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogMaxSizeMB         = 20
	defaultLogMaxBackups        = 5
	queueDatabaseFilename       = "queue.db"
	agentLockFilename           = "fieldscan.lock"
	syncLockFilename            = "sync.lock"
	defaultConfigRelativePath   = "~/.config/fieldscan/config.toml"
	projectConfigFilename       = "fieldscan.toml"
	envRemoteURL                = "FIELDSCAN_REMOTE_URL"
	envUserID                   = "FIELDSCAN_USER_ID"
	envRemoteToken              = "FIELDSCAN_REMOTE_TOKEN"
	minCheckIntervalSeconds     = 2
	maxRequestTimeoutSeconds    = 600
	maxLogBackups               = 100
	defaultRemoteServerBind     = "127.0.0.1:7718"
	defaultRemoteServerDatabase = "~/.local/share/fieldscan-remote/records.db"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			InboxDir: defaultInboxDir,
			APIBind:  defaultAPIBind,
		},
		Remote: Remote{
			BaseURL:        defaultRemoteBaseURL,
			TimeoutSeconds: defaultRemoteTimeoutSeconds,
		},
		Sync: Sync{
			RequestTimeoutSeconds: defaultSyncRequestTimeout,
			AutoOnReconnect:       defaultSyncAutoOnReconnect,
			CheckIntervalSeconds:  defaultSyncCheckInterval,
			UseNetlink:            defaultSyncUseNetlink,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
		},
		Server: Server{
			Bind:         defaultRemoteServerBind,
			DatabasePath: defaultRemoteServerDatabase,
		},
	}
}
