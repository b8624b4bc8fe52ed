package config

const (
	defaultConfigPath  = "~/.config/attentionguard/config.toml"
	projectConfigName  = "attentionguard.toml"
	defaultStateDir    = "~/.local/share/attentionguard"
	defaultLogDir      = "~/.local/share/attentionguard/logs"
	defaultSocketName  = "attentionguard.sock"
	defaultSQLiteName  = "records.db"
	defaultAPIBind     = "127.0.0.1:7489"
	defaultRedisAddr   = "localhost:6379"
	defaultRedisPrefix = "attentionguard:"

	defaultDebounceMS    = 800
	defaultEventsBuffer  = 512
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultRetentionDays = 14
)

// Durable backend names accepted by store.durable_backend.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Default returns a Config populated with repository defaults. Socket and
// database paths left empty are derived from state_dir during normalize.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Store: Store{
			DurableBackend: BackendSQLite,
			RedisAddr:      defaultRedisAddr,
			RedisKeyPrefix: defaultRedisPrefix,
		},
		Scheduler: Scheduler{
			DefaultDebounceMS: defaultDebounceMS,
		},
		Classification: Classification{
			NormalizeText: true,
		},
		Events: Events{
			Buffer: defaultEventsBuffer,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultRetentionDays,
		},
	}
}
