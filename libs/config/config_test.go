package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name     string `env:"SERVICE_NAME" envDefault:"test-service"`
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Postgres
	Redis
	Interval int `env:"SLOT_INTERVAL" envDefault:"30"`
}

func (c testConfig) Validate() error {
	return CheckPort("PORT", c.Port)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "8084")
	t.Setenv("DATABASE_URL", "postgres://localhost/salon")

	cfg, err := Load[testConfig]()
	require.NoError(t, err)
	assert.Equal(t, "8084", cfg.Port)
	assert.Equal(t, "test-service", cfg.Name)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30, cfg.Interval)
	assert.Equal(t, "postgres://localhost/salon", cfg.URL)
	assert.Equal(t, int32(10), cfg.MaxConns)
	assert.Equal(t, 30*time.Minute, cfg.MaxConnLifetime)
}

func TestLoad_Required(t *testing.T) {
	t.Setenv("PORT", "8084")
	t.Setenv("DATABASE_URL", "")

	_, err := Load[testConfig]()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_RunsValidate(t *testing.T) {
	t.Setenv("PORT", "99999")
	t.Setenv("DATABASE_URL", "postgres://localhost/salon")

	_, err := Load[testConfig]()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid TCP port")
}

func TestCheckPort(t *testing.T) {
	assert.NoError(t, CheckPort("PORT", "8080"))
	assert.Error(t, CheckPort("PORT", "abc"))
	assert.Error(t, CheckPort("PORT", "0"))
	assert.ErrorContains(t, CheckPort("GRPC_PORT", "70000"), "GRPC_PORT")
}
