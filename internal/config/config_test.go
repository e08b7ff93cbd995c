package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Permissions.TTL())
	assert.Equal(t, 1024, cfg.Permissions.MaxRenderings)
	assert.Equal(t, "memory", cfg.Permissions.CacheDriver)
	assert.Equal(t, 5*time.Second, cfg.Source.Timeout())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFrom_EnvOverridesTTL(t *testing.T) {
	t.Setenv("PERMISSIONS_TTL_SECONDS", "5")
	t.Setenv("SOURCE_URL", "http://forest.test")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Permissions.TTL())
	assert.Equal(t, "http://forest.test", cfg.Source.URL)
}

func TestLoadFrom_YAML(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
permissions:
  ttl_seconds: 0
  cache_driver: redis
database:
  driver: sqlite
  path: /tmp
  name: records
`)))

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.Permissions.TTL())
	assert.Equal(t, "redis", cfg.Permissions.CacheDriver)
	assert.True(t, cfg.Database.IsSQLite())
	assert.Equal(t, "/tmp/records.db", cfg.Database.DSN())
}

func TestLoadFrom_Invalid(t *testing.T) {
	v := viper.New()
	v.Set("permissions.cache_driver", "memcached")
	_, err := LoadFrom(v)
	require.Error(t, err)

	v = viper.New()
	v.Set("permissions.ttl_seconds", -1)
	_, err = LoadFrom(v)
	require.Error(t, err)

	v = viper.New()
	v.Set("database.driver", "mysql")
	_, err = LoadFrom(v)
	require.Error(t, err)

	v = viper.New()
	v.Set("database.driver", "none")
	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.False(t, cfg.Database.Enabled())
}

func TestDatabaseConfig_PostgresDSN(t *testing.T) {
	d := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "app"}
	assert.Equal(t, "postgres://u:p@db:5432/app?sslmode=disable", d.DSN())
}
