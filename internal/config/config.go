// Package config loads process configuration from config.toml and PHARM_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is the full configuration of the server and worker binaries.
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Storage     StorageConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Worker      WorkerConfig
	Idempotency IdempotencyConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsDevelopment reports whether the app runs in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development"
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AutoMigrate     bool
}

type StorageConfig struct {
	Driver string // postgres | memory
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type LogConfig struct {
	Level string
}

type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	CORSAllowOrigins []string
}

type WorkerConfig struct {
	ExpiryInterval  time.Duration
	OutboxInterval  time.Duration
	OutboxBatchSize int
	CleanupInterval time.Duration
}

type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
}

// Load reads configuration. A missing config.toml is not an error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pharmledger")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PHARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MaxConns:        v.GetInt32("database.max_conns"),
			MinConns:        v.GetInt32("database.min_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetDuration("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Storage: StorageConfig{
			Driver: v.GetString("storage.driver"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
			TTL:    v.GetDuration("jwt.ttl"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
		Worker: WorkerConfig{
			ExpiryInterval:  v.GetDuration("worker.expiry_interval"),
			OutboxInterval:  v.GetDuration("worker.outbox_interval"),
			OutboxBatchSize: v.GetInt("worker.outbox_batch_size"),
			CleanupInterval: v.GetDuration("worker.cleanup_interval"),
		},
		Idempotency: IdempotencyConfig{
			Enabled: v.GetBool("idempotency.enabled"),
			TTL:     v.GetDuration("idempotency.ttl"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "pharmledger"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 25
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30 * time.Minute
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StoragePostgres
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "pharmledger"
	}
	if cfg.JWT.TTL == 0 {
		cfg.JWT.TTL = 12 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if len(cfg.HTTP.CORSAllowOrigins) == 0 {
		cfg.HTTP.CORSAllowOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Worker.ExpiryInterval == 0 {
		cfg.Worker.ExpiryInterval = time.Hour
	}
	if cfg.Worker.OutboxInterval == 0 {
		cfg.Worker.OutboxInterval = time.Second
	}
	if cfg.Worker.OutboxBatchSize == 0 {
		cfg.Worker.OutboxBatchSize = 100
	}
	if cfg.Worker.CleanupInterval == 0 {
		cfg.Worker.CleanupInterval = time.Hour
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 24 * time.Hour
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StoragePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres storage driver")
		}
	case StorageMemory:
		if c.Idempotency.Enabled {
			return fmt.Errorf("idempotency requires the postgres storage driver")
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage.Driver)
	}

	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) cannot exceed database.max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production")
			}
		}
	} else if c.JWT.Secret == "" {
		c.JWT.Secret = "dev-secret-change-me"
	}

	return nil
}
