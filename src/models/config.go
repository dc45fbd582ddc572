package models

import "time"

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	LogFile   MLogFileConfig   `yaml:"log_file"`
	GrpcHost  string           `yaml:"grpc_host"`
	GrpcPort  int              `yaml:"grpc_port"`
	API       MApiConfig       `yaml:"api"`
	Network   MNetworkConfig   `yaml:"network"`
	Streaming MStreamingConfig `yaml:"streaming"`
	Storage   MStorageConfig   `yaml:"storage"`
}

type MLogFileConfig struct {
	Path       string `yaml:"path"` // Empty disables file output
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type MApiConfig struct {
	UseProduction  bool   `yaml:"use_production"`
	BaseURL        string `yaml:"base_url"` // Overrides the sandbox/production URL when set
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	RefreshToken   string `yaml:"refresh_token"`
	TokenCachePath string `yaml:"token_cache_path"`
	TokenTTLHours  int    `yaml:"token_ttl_hours"`
}

type MNetworkConfig struct {
	RequestTimeout int    `yaml:"timeout"`
	MaxRetries     int    `yaml:"retries"`
	UserAgent      string `yaml:"user_agent"`
}

// MStreamingConfig holds the DxLink session tunables.
type MStreamingConfig struct {
	ProtocolVersion    string        `yaml:"protocol_version"`
	KeepaliveTimeout   int           `yaml:"keepalive_timeout_seconds"`
	KeepaliveInterval  time.Duration `yaml:"keepalive_interval"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout"`
	HistoricalGrace    time.Duration `yaml:"historical_grace"`
	ShutdownGrace      time.Duration `yaml:"shutdown_grace"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	DataChannel        int           `yaml:"data_channel"`
	MaxRecords         int           `yaml:"max_records"` // 0 disables the record threshold
}

type MStorageConfig struct {
	Enabled            bool   `yaml:"enabled"`
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}
