package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"market-streamer/src/models"

	"gopkg.in/yaml.v3"
)

const (
	SandboxURL    = "https://api.cert.tastyworks.com"
	ProductionURL = "https://api.tastyworks.com"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse builds a validated Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()
	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// Default returns a config populated only with defaults, for CLI use without a file.
func Default() *Config {
	c := &Config{MConfig: &models.MConfig{Name: "market-streamer"}}
	c.applyDefaults()
	c.applyEnvOverrides()
	return c
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.GrpcPort == 0 {
		c.GrpcPort = 50051
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.LogFile.MaxSizeMB == 0 {
		c.LogFile.MaxSizeMB = 50
	}

	if c.API.TokenCachePath == "" {
		c.API.TokenCachePath = "dxlink_token_cache.json"
	}
	if c.API.TokenTTLHours == 0 {
		c.API.TokenTTLHours = 24
	}

	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 10
	}
	if c.Network.MaxRetries == 0 {
		c.Network.MaxRetries = 3
	}
	if c.Network.UserAgent == "" {
		c.Network.UserAgent = "market-streamer/1.0"
	}

	s := &c.Streaming
	if s.ProtocolVersion == "" {
		s.ProtocolVersion = "0.1-DXF-JS/0.3.0"
	}
	if s.KeepaliveTimeout == 0 {
		s.KeepaliveTimeout = 60
	}
	if s.KeepaliveInterval == 0 {
		s.KeepaliveInterval = 30 * time.Second
	}
	if s.HandshakeTimeout == 0 {
		s.HandshakeTimeout = 10 * time.Second
	}
	if s.NegotiationTimeout == 0 {
		s.NegotiationTimeout = 15 * time.Second
	}
	if s.HistoricalGrace == 0 {
		s.HistoricalGrace = 15 * time.Second
	}
	if s.ShutdownGrace == 0 {
		s.ShutdownGrace = 10 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 5 * time.Second
	}
	if s.DataChannel == 0 {
		s.DataChannel = 1
	}

	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "market-streamer.db"
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = 30
	}
}

// -----------------------------------------------------------------------------

// applyEnvOverrides lets secrets stay out of the YAML file
func (c *Config) applyEnvOverrides() {
	c.API.ClientID = getEnv("TASTY_CLIENT_ID", c.API.ClientID)
	c.API.ClientSecret = getEnv("TASTY_CLIENT_SECRET", c.API.ClientSecret)
	c.API.RefreshToken = getEnv("TASTY_REFRESH_TOKEN", c.API.RefreshToken)
	c.API.UseProduction = getBoolEnv("TASTY_USE_PRODUCTION", c.API.UseProduction)
	c.Storage.DBConnectionString = getEnv("MARKET_STREAMER_DB_DSN", c.Storage.DBConnectionString)
	c.LogLevel = getEnv("MARKET_STREAMER_LOG_LEVEL", c.LogLevel)
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort <= 1024 || c.GrpcPort > 65535 {
		return fmt.Errorf("invalid grpc port number: %d (must be between 1025 and 65535)", c.GrpcPort)
	}

	// API
	if c.API.TokenTTLHours <= 0 {
		return fmt.Errorf("token ttl must be greater than 0")
	}

	// Network
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Streaming
	s := c.Streaming
	if s.DataChannel <= 0 {
		return fmt.Errorf("data channel must be greater than 0 (channel 0 is the control channel)")
	}
	if s.NegotiationTimeout <= 0 || s.HistoricalGrace <= 0 {
		return fmt.Errorf("negotiation timeout and historical grace must be greater than 0")
	}
	if s.MaxRecords < 0 {
		return fmt.Errorf("max records cannot be negative")
	}

	// Storage
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.Enabled && c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.Enabled && c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}

	return nil
}

// -----------------------------------------------------------------------------

// BaseURL resolves the REST endpoint
func (c *Config) BaseURL() string {
	if c.API.BaseURL != "" {
		return c.API.BaseURL
	}
	if c.API.UseProduction {
		return ProductionURL
	}
	return SandboxURL
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0600, it may hold secrets)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
