package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults with memory storage", func(t *testing.T) {
		t.Setenv("PHARM_STORAGE_DRIVER", "memory")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "pharmledger", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, StorageMemory, cfg.Storage.Driver)
		assert.Equal(t, int32(25), cfg.Database.MaxConns)
		assert.Equal(t, time.Hour, cfg.Worker.ExpiryInterval)
		assert.Equal(t, 100, cfg.Worker.OutboxBatchSize)
		assert.Equal(t, 12*time.Hour, cfg.JWT.TTL)
		assert.NotEmpty(t, cfg.JWT.Secret, "development gets a throwaway secret")
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PHARM_DATABASE_URL", "postgres://ledger@db:5432/ledger")
		t.Setenv("PHARM_APP_PORT", "9090")
		t.Setenv("PHARM_WORKER_EXPIRY_INTERVAL", "15m")
		t.Setenv("PHARM_REDIS_ENABLED", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
		assert.Equal(t, "postgres://ledger@db:5432/ledger", cfg.Database.URL)
		assert.Equal(t, "9090", cfg.App.Port)
		assert.Equal(t, 15*time.Minute, cfg.Worker.ExpiryInterval)
		assert.True(t, cfg.Redis.Enabled)
	})

	t.Run("postgres without url fails", func(t *testing.T) {
		t.Setenv("PHARM_DATABASE_URL", "")

		_, err := Load()
		assert.ErrorContains(t, err, "database.url")
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Storage: StorageConfig{Driver: StorageMemory}}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "memory is valid", mutate: func(*Config) {}},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Storage.Driver = "sqlite" },
			wantErr: "storage.driver",
		},
		{
			name:    "idempotency needs postgres",
			mutate:  func(c *Config) { c.Idempotency.Enabled = true },
			wantErr: "idempotency",
		},
		{
			name:    "pool bounds",
			mutate:  func(c *Config) { c.Database.MinConns = 50 },
			wantErr: "min_conns",
		},
		{
			name: "production needs a long secret",
			mutate: func(c *Config) {
				c.App.Env = "production"
				c.JWT.Secret = "short"
			},
			wantErr: "jwt.secret",
		},
		{
			name: "production rejects wildcard cors",
			mutate: func(c *Config) {
				c.App.Env = "production"
				c.JWT.Secret = "0123456789abcdef0123456789abcdef"
				c.HTTP.CORSAllowOrigins = []string{"*"}
			},
			wantErr: "cors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
