package config

import (
	"testing"
	"time"

	"github.com/aescanero/markflow/pkg/domain"
	"github.com/caarlos0/env/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadEnv(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadEnv(map[string]string{"LLM_API_KEY": "sk-test"})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.GetHTTPAddr())
	assert.Equal(t, ":9090", cfg.GetGRPCAddr())
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.DefaultModel)
	assert.Equal(t, 120*time.Second, cfg.LLM.RequestTimeout)
	assert.Equal(t, 5, cfg.Workers.PoolSize)
	assert.Equal(t, time.Hour, cfg.Timeouts.GraphExecutionTimeout)
	assert.True(t, cfg.Assets.RenderEnabled)

	bounds := cfg.GradingBounds()
	assert.Equal(t, 5, bounds.ChunkSize)
	assert.Equal(t, 3, bounds.MaxChunkRetries)
	assert.Equal(t, 3, bounds.MaxGlobalPasses)
	assert.Equal(t, []string{"marking_criteria"}, bounds.PreservedFields)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := loadEnv(map[string]string{
		"LLM_PROVIDER":            "none",
		"STORAGE_BACKEND":         "redis",
		"REDIS_ADDR":              "redis:6379",
		"GRADING_CHUNK_SIZE":      "10",
		"WORKER_QUEUE_SIZE":       "7",
		"ASSETS_RENDER_ENABLED":   "false",
		"TIMEOUT_GRAPH_EXECUTION": "90s",
		"MARKFLOW_HTTP_PORT":      "8000",
	})
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.GetHTTPAddr())
	assert.Equal(t, StorageRedis, cfg.Storage.Backend)
	assert.Equal(t, 10, cfg.GradingBounds().ChunkSize)
	assert.Equal(t, 7, cfg.Workers.QueueSize)
	assert.False(t, cfg.Assets.RenderEnabled)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.GraphExecutionTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"missing api key", map[string]string{}, "API key"},
		{"bad provider", map[string]string{"LLM_PROVIDER": "gemini", "LLM_API_KEY": "k"}, "unsupported LLM provider"},
		{"bad backend", map[string]string{"LLM_PROVIDER": "none", "STORAGE_BACKEND": "etcd"}, "storage backend"},
		{"bad port", map[string]string{"LLM_PROVIDER": "none", "MARKFLOW_HTTP_PORT": "70000"}, "HTTP port"},
		{"bad pool", map[string]string{"LLM_PROVIDER": "none", "WORKER_POOL_SIZE": "0"}, "pool size"},
		{"bad chunk", map[string]string{"LLM_PROVIDER": "none", "GRADING_CHUNK_SIZE": "0"}, "chunk size"},
		{"bad log level", map[string]string{"LLM_PROVIDER": "none", "LOG_LEVEL": "trace"}, "log level"},
		{"bad concurrency", map[string]string{"LLM_PROVIDER": "none", "ENGINE_MAX_CONCURRENCY": "-1"}, "concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadEnv(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateGradingIsConfigurationError(t *testing.T) {
	cfg, err := loadEnv(map[string]string{"LLM_PROVIDER": "none"})
	require.NoError(t, err)

	cfg.Grading.MaxGlobalPasses = 0
	assert.ErrorIs(t, cfg.Validate(), domain.ErrConfiguration)
}
