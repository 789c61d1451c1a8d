package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.False(t, cfg.Database.UseSSL)
	assert.Equal(t, time.Hour, cfg.JWT.TokenTTL)
	assert.Equal(t, StorageBackendNone, cfg.Storage.Backend)
	assert.Equal(t, MQBackendNone, cfg.MQ.Backend)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("JWT_SECRET", "supersecret")
	t.Setenv("JWT_TTL_SECONDS", "120")
	t.Setenv("STORAGE_BACKEND", "MinIO")
	t.Setenv("MQ_BACKEND", "RabbitMQ")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, "supersecret", cfg.JWT.Secret)
	assert.Equal(t, 2*time.Minute, cfg.JWT.TokenTTL)
	assert.Equal(t, StorageBackendMinio, cfg.Storage.Backend)
	assert.Equal(t, MQBackendRabbitMQ, cfg.MQ.Backend)
}

func TestGetEnvBool(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{value: "1", want: true},
		{value: "true", want: true},
		{value: "YES", want: true},
		{value: "on", want: true},
		{value: "0", want: false},
		{value: "false", want: false},
		{value: "off", want: false},
		{value: "garbage", want: true},
	}

	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tc.value)
			assert.Equal(t, tc.want, getEnvBool("TEST_BOOL", true))
		})
	}
}
