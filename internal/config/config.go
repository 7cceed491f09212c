package config

import "time"

// Live drivers understood by the chat client.
const (
	LiveDriverWS    = "ws"
	LiveDriverNATS  = "nats"
	LiveDriverRedis = "redis"
)

// Config holds relay and client configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MaxMessageLength  int           `mapstructure:"max_message_length" yaml:"max_message_length"`
	ClientBuffer      int           `mapstructure:"client_buffer" yaml:"client_buffer"`
	HistoryLimit      int           `mapstructure:"history_limit" yaml:"history_limit"`
	RateLimit         int           `mapstructure:"rate_limit" yaml:"rate_limit"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	Client ClientConfig `mapstructure:"client" yaml:"client"`
}

// ClientConfig configures the chat client commands.
type ClientConfig struct {
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	WSURL         string        `mapstructure:"ws_url" yaml:"ws_url"`
	Token         string        `mapstructure:"token" yaml:"token"`
	LiveDriver    string        `mapstructure:"live_driver" yaml:"live_driver"`
	NATSURL       string        `mapstructure:"nats_url" yaml:"nats_url"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	SubjectPrefix string        `mapstructure:"subject_prefix" yaml:"subject_prefix"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	SendTimeout   time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "village.db",
		MaxMessageBytes:   1 << 16,
		MaxMessageLength:  2000,
		ClientBuffer:      32,
		HistoryLimit:      500,
		RateLimit:         120,
		JWTSecret:         "change-me",
		JWTIssuer:         "village",
		JWTTTL:            24 * time.Hour,
		Client: ClientConfig{
			BaseURL:       "http://localhost:8080",
			WSURL:         "ws://localhost:8080/chats",
			LiveDriver:    LiveDriverWS,
			NATSURL:       "nats://127.0.0.1:4222",
			RedisAddr:     "localhost:6379",
			SubjectPrefix: "village",
			FetchTimeout:  10 * time.Second,
			SendTimeout:   5 * time.Second,
		},
	}
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
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.Client.BaseURL != "" {
		c.Client.BaseURL = other.Client.BaseURL
	}
	if other.Client.WSURL != "" {
		c.Client.WSURL = other.Client.WSURL
	}
	if other.Client.Token != "" {
		c.Client.Token = other.Client.Token
	}
	if other.Client.LiveDriver != "" {
		c.Client.LiveDriver = other.Client.LiveDriver
	}
}
