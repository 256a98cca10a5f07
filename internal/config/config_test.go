package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "POSTGRES_DSN", "REDIS_ADDR", "KAFKA_BROKERS", "SERVICE_NAME", "LOG_LEVEL", "PROJECTOR_GROUP", "PROJECTOR_WORKERS"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "housing-api", cfg.ServiceName)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "housing-projector", cfg.ProjectorGroup)
	assert.Equal(t, 8, cfg.ProjectorWorkers)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PROJECTOR_WORKERS", "3")
	t.Setenv("POSTGRES_DSN", "postgres://app@db/housing")
	cfg := Load()

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 3, cfg.ProjectorWorkers)
	assert.Equal(t, "postgres://app@db/housing", cfg.PostgresDSN)
}

func TestLoadIgnoresBadValues(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("PROJECTOR_WORKERS", "-2")
	cfg := Load()

	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 8, cfg.ProjectorWorkers)
}
