package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	JWT      JWTConfig      `mapstructure:"jwt" yaml:"jwt"`
	Chat     ChatConfig     `mapstructure:"chat" yaml:"chat"`
	AMQP     AMQPConfig     `mapstructure:"amqp" yaml:"amqp"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
}

// DatabaseConfig selects the message store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// JWTConfig holds token verification settings shared with the main app.
type JWTConfig struct {
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience string        `mapstructure:"audience" yaml:"audience"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// ChatConfig tunes the websocket broadcaster.
type ChatConfig struct {
	AllowedOrigins    []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	MaxMessageBytes   int           `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	ClientBuffer      int           `mapstructure:"client_buffer" yaml:"client_buffer"`
	SendRatePerMinute int           `mapstructure:"send_rate_per_minute" yaml:"send_rate_per_minute"`
	PersistTimeout    time.Duration `mapstructure:"persist_timeout" yaml:"persist_timeout"`
	HistoryLimit      int           `mapstructure:"history_limit" yaml:"history_limit"`
}

// AMQPConfig enables publishing of stored messages. Empty URL disables it.
type AMQPConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Exchange string `mapstructure:"exchange" yaml:"exchange"`
}

// TracingConfig enables OTLP trace export. Empty endpoint disables it.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "projectchat.db",
		},
		JWT: JWTConfig{
			Secret:   "change-me-in-production",
			Issuer:   "projectchat",
			Audience: "projectchat",
			TTL:      24 * time.Hour,
		},
		Chat: ChatConfig{
			AllowedOrigins:    []string{"*"},
			MaxMessageBytes:   4096,
			ClientBuffer:      32,
			SendRatePerMinute: 60,
			PersistTimeout:    5 * time.Second,
			HistoryLimit:      50,
		},
		AMQP: AMQPConfig{
			Exchange: "projectchat.events",
		},
		Tracing: TracingConfig{
			ServiceName: "projectchat-server",
		},
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres":
	default:
		return errors.New("database.driver must be sqlite or postgres")
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Chat.MaxMessageBytes <= 0 {
		return errors.New("chat.max_message_bytes must be positive")
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Database.Driver != "" {
		c.Database.Driver = other.Database.Driver
	}
	if other.Database.DSN != "" {
		c.Database.DSN = other.Database.DSN
	}
}
