package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Permissions PermissionsConfig `mapstructure:"permissions"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Source      SourceConfig      `mapstructure:"source"`
	Log         LogConfig         `mapstructure:"log"`
	Instrument  InstrumentConfig  `mapstructure:"instrumentation"`
	EnvSecret   string            `mapstructure:"env_secret"`  // signs approval requests
	AuthSecret  string            `mapstructure:"auth_secret"` // signs user session tokens
	SchemaPath  string            `mapstructure:"schema_path"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type PermissionsConfig struct {
	TTLSeconds    int    `mapstructure:"ttl_seconds"`
	MaxRenderings int    `mapstructure:"max_renderings"`
	CacheDriver   string `mapstructure:"cache_driver"` // memory or redis
}

// TTL returns the snapshot freshness window.
func (p PermissionsConfig) TTL() time.Duration {
	return time.Duration(p.TTLSeconds) * time.Second
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SourceConfig struct {
	URL             string `mapstructure:"url"`
	SecretKey       string `mapstructure:"secret_key"`
	TimeoutMs       int    `mapstructure:"timeout_ms"`
	MaxRetries      int    `mapstructure:"max_retries"`
	BreakerFailures int    `mapstructure:"breaker_failures"`
}

func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type InstrumentConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	BufferSize       int     `mapstructure:"buffer_size"`
	RetentionSeconds int     `mapstructure:"retention_seconds"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// Enabled reports whether a record database is configured. Driver "none"
// leaves only virtual collections countable.
func (d DatabaseConfig) Enabled() bool {
	return d.Driver != "none"
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

// Load reads app.yaml from the working directory (or the repo root) and the
// environment. A missing file is not an error; defaults and env still apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../..")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return LoadFrom(v)
}

// LoadFrom applies defaults and env bindings to v and decodes it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Permissions.TTLSeconds < 0 {
		return nil, fmt.Errorf("permissions.ttl_seconds must not be negative, got %d", cfg.Permissions.TTLSeconds)
	}
	switch cfg.Permissions.CacheDriver {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("permissions.cache_driver must be memory or redis, got %q", cfg.Permissions.CacheDriver)
	}
	switch cfg.Database.Driver {
	case "postgres", "sqlite", "none":
	default:
		return nil, fmt.Errorf("database.driver must be postgres, sqlite or none, got %q", cfg.Database.Driver)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.path", "./data")
	v.SetDefault("permissions.ttl_seconds", 3600)
	v.SetDefault("permissions.max_renderings", 1024)
	v.SetDefault("permissions.cache_driver", "memory")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "permission-gate:")
	v.SetDefault("source.url", "http://localhost:3000")
	v.SetDefault("source.secret_key", "")
	v.SetDefault("source.timeout_ms", 5000)
	v.SetDefault("source.max_retries", 2)
	v.SetDefault("source.breaker_failures", 5)
	v.SetDefault("env_secret", "changeme-env-secret")
	v.SetDefault("auth_secret", "changeme-auth-secret")
	v.SetDefault("schema_path", "./schema.json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("instrumentation.enabled", true)
	v.SetDefault("instrumentation.buffer_size", 500)
	v.SetDefault("instrumentation.retention_seconds", 3600)
	v.SetDefault("instrumentation.sampling_rate", 1.0)
}
