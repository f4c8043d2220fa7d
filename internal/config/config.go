package config

import (
	"fmt"
	"time"

	"github.com/aescanero/markflow/internal/application/grading"
	"github.com/caarlos0/env/v10"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// LLM providers. ProviderNone runs without a model client; model resolvers
// then fail with a configuration error.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderNone      = "none"
)

// Config holds all configuration for the markflow server
type Config struct {
	// Server configuration
	HTTPPort int    `env:"MARKFLOW_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"MARKFLOW_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// APIToken protects /api/v1 with bearer authentication when set
	APIToken string `env:"MARKFLOW_API_TOKEN"`

	// Storage selects where workflows, files, runs and events live
	Storage StorageConfig

	// Redis configuration
	Redis RedisConfig

	// LLM configuration
	LLM LLMConfig

	// Worker configuration
	Workers WorkerConfig

	// Timeouts
	Timeouts TimeoutConfig

	// Grading bounds
	Grading GradingConfig

	// Assets configuration
	Assets AssetConfig

	// Engine configuration
	Engine EngineConfig
}

// StorageConfig holds backend selection
type StorageConfig struct {
	Backend string        `env:"STORAGE_BACKEND" envDefault:"memory"`
	RunTTL  time.Duration `env:"STORAGE_RUN_TTL" envDefault:"168h"`
	// WorkflowsDir is loaded into the workflow store at startup when set
	WorkflowsDir string `env:"WORKFLOWS_DIR"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// Event streams
	ConsumerGroup string `env:"REDIS_EVENTS_CONSUMER_GROUP" envDefault:"markflow"`
	StreamMaxLen  int64  `env:"REDIS_EVENTS_MAX_LEN" envDefault:"10000"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"openai"`
	APIKey   string `env:"LLM_API_KEY"`
	BaseURL  string `env:"LLM_BASE_URL"`

	RequestTimeout time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s"`

	// Default model settings
	DefaultModel     string `env:"LLM_DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	DefaultMaxTokens int    `env:"LLM_DEFAULT_MAX_TOKENS" envDefault:"4096"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"5"`
	QueueSize           int           `env:"WORKER_QUEUE_SIZE" envDefault:"100"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	GraphExecutionTimeout time.Duration `env:"TIMEOUT_GRAPH_EXECUTION" envDefault:"3600s"` // 1 hour
	ShutdownTimeout       time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// GradingConfig holds the default batch grading bounds
type GradingConfig struct {
	ChunkSize       int `env:"GRADING_CHUNK_SIZE" envDefault:"5"`
	MaxChunkRetries int `env:"GRADING_MAX_CHUNK_RETRIES" envDefault:"3"`
	MaxGlobalPasses int `env:"GRADING_MAX_GLOBAL_PASSES" envDefault:"3"`
}

// AssetConfig holds asset resolution settings
type AssetConfig struct {
	TempDir         string        `env:"ASSETS_TEMP_DIR"`
	PublicDir       string        `env:"ASSETS_PUBLIC_DIR" envDefault:"public"`
	DownloadTimeout time.Duration `env:"ASSETS_DOWNLOAD_TIMEOUT" envDefault:"60s"`

	// Headless Chrome renders extension-less URLs to PDF
	RenderEnabled bool          `env:"ASSETS_RENDER_ENABLED" envDefault:"true"`
	ChromePath    string        `env:"ASSETS_CHROME_PATH"`
	RenderTimeout time.Duration `env:"ASSETS_RENDER_TIMEOUT" envDefault:"60s"`
}

// EngineConfig holds executor defaults applied when a workflow sets none
type EngineConfig struct {
	MaxConcurrency int `env:"ENGINE_MAX_CONCURRENCY" envDefault:"0"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return load(env.Options{})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate storage
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s (must be memory or redis)", c.Storage.Backend)
	}

	// Validate LLM config
	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("LLM API key is required")
		}
	case ProviderNone:
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}
	if c.LLM.DefaultMaxTokens < 1 {
		return fmt.Errorf("LLM max tokens must be positive")
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Workers.QueueSize < 1 {
		return fmt.Errorf("worker queue size must be at least 1")
	}

	if err := c.GradingBounds().Validate(); err != nil {
		return err
	}

	if c.Engine.MaxConcurrency < 0 {
		return fmt.Errorf("engine max concurrency cannot be negative")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// GradingBounds returns the grading defaults as a grading config
func (c *Config) GradingBounds() grading.Config {
	cfg := grading.DefaultConfig()
	cfg.ChunkSize = c.Grading.ChunkSize
	cfg.MaxChunkRetries = c.Grading.MaxChunkRetries
	cfg.MaxGlobalPasses = c.Grading.MaxGlobalPasses
	return cfg
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
