package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App          AppSettings          `mapstructure:"app"`
	Store        StoreSettings        `mapstructure:"store"`
	Redis        RedisSettings        `mapstructure:"redis"`
	Sqlite       SqliteSettings       `mapstructure:"sqlite"`
	Postgres     PostgresSettings     `mapstructure:"postgres"`
	Kafka        KafkaSettings        `mapstructure:"kafka"`
	RateLimit    RateLimitSettings    `mapstructure:"rate_limit"`
	Cache        CacheSettings        `mapstructure:"cache"`
	Sync         SyncSettings         `mapstructure:"sync"`
	Connectivity ConnectivitySettings `mapstructure:"connectivity"`
	Telemetry    TelemetrySettings    `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name      string `mapstructure:"name"`
	Env       string `mapstructure:"env"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// StoreSettings selects the durable key-value backend.
type StoreSettings struct {
	// Backend is one of "sqlite", "redis", "postgres" or "memory".
	Backend string `mapstructure:"backend"`
}

// RedisSettings configures Redis connection and TLS.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// SqliteSettings configures the on-device database file.
type SqliteSettings struct {
	Path     string `mapstructure:"path"`
	PoolSize int    `mapstructure:"pool_size"`
}

type PostgresSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN renders the settings as a pgx connection string.
func (s PostgresSettings) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, s.Database, s.SSLMode)
}

// KafkaSettings configures the Kafka-backed remote applier. Leaving Brokers
// empty disables it and the agent falls back to a logging applier.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// RateLimitSettings configures windows and max attempts per protected action
// plus the maintenance sweep policy.
type RateLimitSettings struct {
	WindowDuration           time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts         int           `mapstructure:"login_max_attempts"`
	RegisterMaxAttempts      int           `mapstructure:"register_max_attempts"`
	PasswordResetMaxAttempts int           `mapstructure:"password_reset_max_attempts"`
	RetentionPeriod          time.Duration `mapstructure:"retention_period"`
	SweepInterval            time.Duration `mapstructure:"sweep_interval"`
}

// CacheSettings configures the TTL cache manager.
type CacheSettings struct {
	DefaultMaxAge time.Duration `mapstructure:"default_max_age"`
}

// SyncSettings configures the durable mutation queue and its coordinator.
type SyncSettings struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	ApplyTimeout  time.Duration `mapstructure:"apply_timeout"`
	DrainInterval time.Duration `mapstructure:"drain_interval"`
}

// ConnectivitySettings configures the reachability probe.
type ConnectivitySettings struct {
	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

type TelemetrySettings struct {
	Namespace string `mapstructure:"namespace"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("OFFLINE")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.key_prefix",
		"store.backend",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"sqlite.path",
		"sqlite.pool_size",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"kafka.brokers",
		"kafka.topic_prefix",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.register_max_attempts",
		"rate_limit.password_reset_max_attempts",
		"rate_limit.retention_period",
		"rate_limit.sweep_interval",
		"cache.default_max_age",
		"sync.max_attempts",
		"sync.apply_timeout",
		"sync.drain_interval",
		"connectivity.probe_url",
		"connectivity.probe_interval",
		"connectivity.probe_timeout",
		"telemetry.namespace",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "offline-agent")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "127.0.0.1")
	v.SetDefault("app.port", 8089)
	v.SetDefault("app.key_prefix", "offline")

	v.SetDefault("store.backend", "sqlite")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("sqlite.path", "./offline.db")
	v.SetDefault("sqlite.pool_size", 4)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "offline")
	v.SetDefault("postgres.password", "offline_password")
	v.SetDefault("postgres.database", "offline")
	v.SetDefault("postgres.ssl_mode", "disable")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "offline.sync")

	v.SetDefault("rate_limit.window_duration", "15m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.register_max_attempts", 3)
	v.SetDefault("rate_limit.password_reset_max_attempts", 3)
	v.SetDefault("rate_limit.retention_period", "24h")
	v.SetDefault("rate_limit.sweep_interval", "1h")

	v.SetDefault("cache.default_max_age", "30m")

	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.apply_timeout", "30s")
	v.SetDefault("sync.drain_interval", "2m")

	v.SetDefault("connectivity.probe_url", "")
	v.SetDefault("connectivity.probe_interval", "30s")
	v.SetDefault("connectivity.probe_timeout", "5s")

	v.SetDefault("telemetry.namespace", "offline")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}
