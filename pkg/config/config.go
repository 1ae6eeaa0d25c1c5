package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the full runtime configuration for a glotta instance.
// Values are resolved defaults ← environment ← command-line flags.
type Config struct {
	// HTTP server
	ServerHost    string
	ServerPort    int
	MaxUploadSize int64 // per-file byte cap

	// Coordination store
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Provider
	GeminiModel     string
	CredentialsFile string
	PromptsFile     string

	// Credential default limits
	DefaultRPM int
	DefaultRPD int
	DefaultTPM int

	// Worker pool
	InstanceID            string
	MinWorkers            int
	MaxWorkers            int // cluster-wide cap
	MaxWorkersPerInstance int
	ScaleCheckInterval    time.Duration

	// Task lifecycle
	MaxProcessingTime time.Duration
	ReclaimInterval   time.Duration

	// Result observer
	PollingTimeout       time.Duration
	PollingCheckInterval time.Duration

	// Per-IP API rate limiting
	GlobalRateLimit int // requests per minute per IP
	BurstRateLimit  int

	// Logging
	LogLevel string
	LogJSON  bool
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerHost:            "0.0.0.0",
		ServerPort:            8080,
		MaxUploadSize:         10485760, // 10 MiB
		RedisAddr:             "localhost:6379",
		RedisPassword:         "",
		RedisDB:               0,
		GeminiModel:           "gemini-2.5-flash-lite",
		CredentialsFile:       "config/credentials.yaml",
		PromptsFile:           "config/prompts.yaml",
		DefaultRPM:            60,
		DefaultRPD:            1440,
		DefaultTPM:            32000,
		MinWorkers:            2,
		MaxWorkers:            50,
		MaxWorkersPerInstance: 50,
		ScaleCheckInterval:    10 * time.Second,
		MaxProcessingTime:     600 * time.Second,
		ReclaimInterval:       300 * time.Second,
		PollingTimeout:        60 * time.Second,
		PollingCheckInterval:  500 * time.Millisecond,
		GlobalRateLimit:       100,
		BurstRateLimit:        20,
		LogLevel:              "info",
		LogJSON:               true,
	}
}

// Load builds the configuration from defaults overlaid with environment
// variables.
func Load() (*Config, error) {
	cfg := Default()

	cfg.ServerHost = getEnvString("SERVER_HOST", cfg.ServerHost)
	cfg.ServerPort = getEnvInt("SERVER_PORT", cfg.ServerPort)
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", cfg.MaxUploadSize)

	cfg.RedisAddr = getEnvString("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)

	cfg.GeminiModel = getEnvString("GEMINI_MODEL", cfg.GeminiModel)
	cfg.CredentialsFile = getEnvString("CREDENTIALS_FILE", cfg.CredentialsFile)
	cfg.PromptsFile = getEnvString("PROMPTS_FILE", cfg.PromptsFile)

	cfg.DefaultRPM = getEnvInt("DEFAULT_RPM", cfg.DefaultRPM)
	cfg.DefaultRPD = getEnvInt("DEFAULT_RPD", cfg.DefaultRPD)
	cfg.DefaultTPM = getEnvInt("DEFAULT_TPM", cfg.DefaultTPM)

	cfg.InstanceID = getEnvString("INSTANCE_ID", cfg.InstanceID)
	cfg.MinWorkers = getEnvInt("MIN_WORKERS", cfg.MinWorkers)
	cfg.MaxWorkers = getEnvInt("MAX_WORKERS", cfg.MaxWorkers)
	cfg.MaxWorkersPerInstance = getEnvInt("MAX_WORKERS_PER_INSTANCE", cfg.MaxWorkersPerInstance)
	cfg.ScaleCheckInterval = getEnvDuration("SCALE_CHECK_INTERVAL", cfg.ScaleCheckInterval)

	cfg.MaxProcessingTime = getEnvDuration("MAX_PROCESSING_TIME", cfg.MaxProcessingTime)
	cfg.ReclaimInterval = getEnvDuration("RECLAIM_INTERVAL", cfg.ReclaimInterval)

	cfg.PollingTimeout = getEnvDuration("POLLING_TIMEOUT", cfg.PollingTimeout)
	cfg.PollingCheckInterval = getEnvDuration("POLLING_CHECK_INTERVAL", cfg.PollingCheckInterval)

	cfg.GlobalRateLimit = getEnvInt("GLOBAL_RATE_LIMIT", cfg.GlobalRateLimit)
	cfg.BurstRateLimit = getEnvInt("BURST_RATE_LIMIT", cfg.BurstRateLimit)

	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogJSON = getEnvBool("LOG_JSON", cfg.LogJSON)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the fabric cannot run with.
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.ServerPort)
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("config: max upload size must be positive")
	}
	if c.MinWorkers < 0 {
		return fmt.Errorf("config: min workers must be >= 0")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("config: max workers must be >= 1")
	}
	if c.MinWorkers > c.MaxWorkers {
		return fmt.Errorf("config: min workers %d exceeds max workers %d", c.MinWorkers, c.MaxWorkers)
	}
	if c.MaxWorkersPerInstance < 1 {
		return fmt.Errorf("config: max workers per instance must be >= 1")
	}
	if c.ScaleCheckInterval <= 0 {
		return fmt.Errorf("config: scale check interval must be positive")
	}
	if c.MaxProcessingTime <= 0 {
		return fmt.Errorf("config: max processing time must be positive")
	}
	if c.ReclaimInterval <= 0 {
		return fmt.Errorf("config: reclaim interval must be positive")
	}
	if c.PollingTimeout <= 0 || c.PollingCheckInterval <= 0 {
		return fmt.Errorf("config: polling intervals must be positive")
	}
	if c.GlobalRateLimit < 1 || c.BurstRateLimit < 1 {
		return fmt.Errorf("config: rate limits must be >= 1")
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

func getEnvString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are treated as seconds.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
