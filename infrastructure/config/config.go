// Package config loads collaboration server configuration.
//
// Sources, lowest to highest priority:
//  1. defaults in code
//  2. the YAML file named by CONFIG_FILE
//  3. environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageDynamoDB = "dynamodb"
)

// Config holds all server configuration
type Config struct {
	// Server configuration
	ServerAddress  string   `yaml:"server_address"`
	Environment    string   `yaml:"environment"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	ConfigFile     string   `yaml:"-"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Storage
	Storage       string `yaml:"storage"`
	AWSRegion     string `yaml:"aws_region"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	IndexName     string `yaml:"index_name"` // GSI1 - diagrams by owner
	EventBusName  string `yaml:"event_bus_name"`

	// Invitations
	InviteSecret string        `yaml:"invite_secret"`
	InviteIssuer string        `yaml:"invite_issuer"`
	InviteTTL    time.Duration `yaml:"invite_ttl"`

	// Generation
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`
	VisionModel   string `yaml:"vision_model"`

	// Export service the REST API proxies to
	ExportBaseURL string `yaml:"export_base_url"`

	// Realtime
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MaxConnections    int           `yaml:"max_connections"`

	// Feature flags
	EnableMetrics bool   `yaml:"enable_metrics"`
	EnableTracing bool   `yaml:"enable_tracing"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	IsLambda      bool   `yaml:"-"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		ServerAddress:     ":8080",
		Environment:       "development",
		AllowedOrigins:    []string{"*"},
		LogLevel:          "info",
		Storage:           StorageMemory,
		AWSRegion:         "us-east-1",
		DynamoDBTable:     "dclass",
		IndexName:         "GSI1",
		InviteIssuer:      "dclass",
		InviteTTL:         7 * 24 * time.Hour,
		OpenAIModel:       "gpt-4o-mini",
		VisionModel:       "gpt-4o",
		HeartbeatInterval: 30 * time.Second,
		MaxConnections:    10000,
		EnableMetrics:     true,
	}
}

// LoadConfig loads configuration from the optional YAML file and the environment
func LoadConfig() (*Config, error) {
	cfg := Default()
	cfg.ConfigFile = os.Getenv("CONFIG_FILE")
	if cfg.ConfigFile != "" {
		if err := cfg.loadFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	cfg.loadEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file on top of the defaults, ignoring the environment
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.ConfigFile = path
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnvironment() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SERVER_ADDRESS") == "" {
		c.ServerAddress = ":" + port
	}
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", c.AllowedOrigins)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Storage = strings.ToLower(getEnv("STORAGE", c.Storage))
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.DynamoDBTable))
	c.IndexName = getEnv("INDEX_NAME", c.IndexName)
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)

	c.InviteSecret = getEnv("INVITE_SECRET", c.InviteSecret)
	c.InviteIssuer = getEnv("INVITE_ISSUER", c.InviteIssuer)
	c.InviteTTL = getEnvDuration("INVITE_TTL", c.InviteTTL)

	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.VisionModel = getEnv("OPENAI_VISION_MODEL", c.VisionModel)

	c.ExportBaseURL = getEnv("EXPORT_BASE_URL", c.ExportBaseURL)

	c.HeartbeatInterval = getEnvDuration("HEARTBEAT_INTERVAL", c.HeartbeatInterval)
	c.MaxConnections = getEnvInt("MAX_CONNECTIONS", c.MaxConnections)

	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
	c.IsLambda = getEnv("AWS_LAMBDA_FUNCTION_NAME", "") != ""
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StorageDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required when STORAGE=dynamodb")
		}
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}
	if c.IsProduction() && c.InviteSecret == "" {
		return fmt.Errorf("INVITE_SECRET is required in production")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive")
	}
	if c.InviteTTL <= 0 {
		return fmt.Errorf("INVITE_TTL must be positive")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// EvictAfter is how long a participant may stay silent before eviction
func (c *Config) EvictAfter() time.Duration {
	return 3 * c.HeartbeatInterval
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
