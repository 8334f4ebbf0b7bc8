// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MongoDB settings.
	MongoURI     string
	DatabaseName string
	Collection   string // Primary event collection.

	// Metadata service settings.
	MetadataURL     string
	MetadataPort    int // Listen port for the standalone metadata service.
	MetadataEnabled bool
	CacheTTL        time.Duration

	// Generation settings.
	OpenAIAPIKey string
	OpenAIModel  string
	OpenAIURL    string // Override for proxies or compatible servers.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("ANVIKSHA_PORT", 8080),
		ReadTimeout:         envDuration("ANVIKSHA_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("ANVIKSHA_WRITE_TIMEOUT", 90*time.Second),
		MongoURI:            envStr("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName:        envStr("MONGO_DATABASE", "cicd_db"),
		Collection:          envStr("ANVIKSHA_COLLECTION", "cdPipelineEvents"),
		MetadataURL:         envStr("MCP_SERVER_URL", "http://localhost:3000"),
		MetadataPort:        envInt("ANVIKSHA_METADATA_PORT", 3000),
		MetadataEnabled:     envBool("MCP_ENABLED", true),
		CacheTTL:            envDuration("ANVIKSHA_CACHE_TTL", 300*time.Second),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		OpenAIModel:         envStr("ANVIKSHA_OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIURL:           envStr("ANVIKSHA_OPENAI_URL", "https://api.openai.com/v1"),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "anviksha"),
		LogLevel:            envStr("ANVIKSHA_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("ANVIKSHA_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("config: MONGO_URI is required")
	}
	if c.DatabaseName == "" {
		return fmt.Errorf("config: MONGO_DATABASE is required")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: ANVIKSHA_CACHE_TTL must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: ANVIKSHA_MAX_REQUEST_BODY_BYTES must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
