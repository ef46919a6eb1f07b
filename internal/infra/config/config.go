package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App        AppSettings        `mapstructure:"app"`
	Identity   IdentitySettings   `mapstructure:"identity"`
	Postgres   PostgresSettings   `mapstructure:"postgres"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Store      StoreSettings      `mapstructure:"store"`
	Kafka      KafkaSettings      `mapstructure:"kafka"`
	Telemetry  TelemetrySettings  `mapstructure:"telemetry"`
	Session    SessionSettings    `mapstructure:"session"`
	Cache      CacheSettings      `mapstructure:"cache"`
	Revocation RevocationSettings `mapstructure:"revocation"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// IdentitySettings points the provider adapter at the remote authentication service.
type IdentitySettings struct {
	BaseURL        string        `mapstructure:"base_url"`
	TokenURL       string        `mapstructure:"token_url"`
	SignOutURL     string        `mapstructure:"signout_url"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	Scopes         []string      `mapstructure:"scopes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection backing persisted local state.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	Namespace  string `mapstructure:"namespace"`
}

// StoreSettings selects the persisted local state backend: "redis" or "memory".
type StoreSettings struct {
	Backend string `mapstructure:"backend"`
}

// KafkaSettings configures the profile change feed and the lifecycle event producer.
type KafkaSettings struct {
	Brokers      []string `mapstructure:"brokers"`
	TopicPrefix  string   `mapstructure:"topic_prefix"`
	ProfileTopic string   `mapstructure:"profile_topic"`
	GroupID      string   `mapstructure:"group_id"`
	Async        bool     `mapstructure:"async"`
}

type TelemetrySettings struct {
	MetricsEnabled bool    `mapstructure:"metrics_enabled"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// SessionSettings holds the timing constants of the session lifecycle.
type SessionSettings struct {
	BootstrapTimeout           time.Duration `mapstructure:"bootstrap_timeout"`
	PollInterval               time.Duration `mapstructure:"poll_interval"`
	VisibilityDebounce         time.Duration `mapstructure:"visibility_debounce"`
	RefreshThreshold           time.Duration `mapstructure:"refresh_threshold"`
	VisibilityRefreshThreshold time.Duration `mapstructure:"visibility_refresh_threshold"`
	BatchWindow                time.Duration `mapstructure:"batch_window"`
	CooperativeWait            time.Duration `mapstructure:"cooperative_wait"`
	FailureThreshold           int           `mapstructure:"failure_threshold"`
	RecoveryCooldown           time.Duration `mapstructure:"recovery_cooldown"`
	IdleThreshold              time.Duration `mapstructure:"idle_threshold"`
	IdleCheckInterval          time.Duration `mapstructure:"idle_check_interval"`
	UserRecordTTL              time.Duration `mapstructure:"user_record_ttl"`
}

// CacheSettings defines the request cache TTL classes.
type CacheSettings struct {
	ShortTTL   time.Duration `mapstructure:"short_ttl"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	LongTTL    time.Duration `mapstructure:"long_ttl"`
}

type RevocationSettings struct {
	DegradationPolicy string `mapstructure:"degradation_policy"`
	QueueSize         int    `mapstructure:"queue_size"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("HRMS")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"identity.base_url",
		"identity.token_url",
		"identity.signout_url",
		"identity.client_id",
		"identity.client_secret",
		"identity.scopes",
		"identity.request_timeout",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.namespace",
		"store.backend",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.profile_topic",
		"kafka.group_id",
		"kafka.async",
		"telemetry.metrics_enabled",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"session.bootstrap_timeout",
		"session.poll_interval",
		"session.visibility_debounce",
		"session.refresh_threshold",
		"session.visibility_refresh_threshold",
		"session.batch_window",
		"session.cooperative_wait",
		"session.failure_threshold",
		"session.recovery_cooldown",
		"session.idle_threshold",
		"session.idle_check_interval",
		"session.user_record_ttl",
		"cache.short_ttl",
		"cache.default_ttl",
		"cache.long_ttl",
		"revocation.degradation_policy",
		"revocation.queue_size",
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
	v.SetDefault("app.name", "hrms-session")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "127.0.0.1")
	v.SetDefault("app.port", 8787)
	v.SetDefault("app.allowed_origins", []string{"http://localhost:5173"})

	v.SetDefault("identity.base_url", "http://localhost:9999")
	v.SetDefault("identity.token_url", "")
	v.SetDefault("identity.signout_url", "")
	v.SetDefault("identity.client_id", "hrms-desktop")
	v.SetDefault("identity.client_secret", "")
	v.SetDefault("identity.scopes", []string{"openid", "profile", "email"})
	v.SetDefault("identity.request_timeout", "10s")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "hrms")
	v.SetDefault("postgres.password", "hrms_password")
	v.SetDefault("postgres.database", "hrms")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("postgres.min_conns", 1)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.namespace", "hrms")

	v.SetDefault("store.backend", "redis")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "hrms")
	v.SetDefault("kafka.profile_topic", "hr.profile.updated")
	v.SetDefault("kafka.group_id", "")
	v.SetDefault("kafka.async", true)

	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "hrms-session")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("session.bootstrap_timeout", "8s")
	v.SetDefault("session.poll_interval", "60s")
	v.SetDefault("session.visibility_debounce", "2s")
	v.SetDefault("session.refresh_threshold", "5m")
	v.SetDefault("session.visibility_refresh_threshold", "2m")
	v.SetDefault("session.batch_window", "10ms")
	v.SetDefault("session.cooperative_wait", "500ms")
	v.SetDefault("session.failure_threshold", 3)
	v.SetDefault("session.recovery_cooldown", "5s")
	v.SetDefault("session.idle_threshold", "8m")
	v.SetDefault("session.idle_check_interval", "30s")
	v.SetDefault("session.user_record_ttl", "60s")

	v.SetDefault("cache.short_ttl", "5s")
	v.SetDefault("cache.default_ttl", "30s")
	v.SetDefault("cache.long_ttl", "5m")

	v.SetDefault("revocation.degradation_policy", "lenient")
	v.SetDefault("revocation.queue_size", 16)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "HRMS_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
