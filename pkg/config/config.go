package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"webconf-backend/pkg/constants"
)

// Config holds all configuration for the call service
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Redis  RedisConfig
	JWT    JWTConfig
	Log    LogConfig
	Calls  CallsConfig
	WebRTC WebRTCConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENV" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"call-service"`

	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"120"` // per user or IP, 0 disables
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	// Browser origins allowed to open the listener socket, same host is always allowed
	AllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
}

// StoreConfig selects and configures the call store
type StoreConfig struct {
	Driver     string `env:"STORE_DRIVER" envDefault:"cockroach"` // cockroach, sqlite
	Host       string `env:"DB_HOST" envDefault:"localhost"`
	Port       int    `env:"DB_PORT" envDefault:"26257"`
	User       string `env:"DB_USER" envDefault:"root"`
	Password   string `env:"DB_PASSWORD"`
	Database   string `env:"DB_NAME" envDefault:"webconf"`
	SSLMode    string `env:"DB_SSL_MODE" envDefault:"disable"`
	MaxConns   int32  `env:"DB_MAX_CONNS" envDefault:"25"`
	MinConns   int32  `env:"DB_MIN_CONNS" envDefault:"5"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/calls.db"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string        `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int           `env:"REDIS_PORT" envDefault:"6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	Timeout  time.Duration `env:"REDIS_TIMEOUT" envDefault:"5s"`
}

// JWTConfig holds token verification settings
type JWTConfig struct {
	Secret   string `env:"JWT_SECRET"`
	Audience string `env:"JWT_AUDIENCE"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string `env:"LOG_LEVEL" envDefault:"info"`    // debug, info, warn, error
	Format   string `env:"LOG_FORMAT" envDefault:"json"`   // json, text
	Output   string `env:"LOG_OUTPUT" envDefault:"stdout"` // stdout, file
	FilePath string `env:"LOG_FILE_PATH" envDefault:"/var/log/webconf/call-service.log"`
}

// CallsConfig holds call lifecycle settings
type CallsConfig struct {
	UserCallMaxAgeDays int           `env:"USER_CALL_MAX_AGE_DAYS"`
	DispatchTimeout    time.Duration `env:"DISPATCH_TIMEOUT"`
	MaxListeners       int           `env:"WS_MAX_CONNECTIONS"`
	// Directory lookups are cached this long, 0 disables the cache
	DirectoryCacheTTL  time.Duration `env:"DIRECTORY_CACHE_TTL" envDefault:"30s"`
	DirectoryCacheSize int           `env:"DIRECTORY_CACHE_SIZE" envDefault:"10000"`
}

// WebRTCConfig holds settings of the built-in WebRTC provider
type WebRTCConfig struct {
	ICEServers []string `env:"WEBRTC_ICE_SERVERS" envDefault:"stun:stun.l.google.com:19302" envSeparator:","`
	LogEnabled bool     `env:"WEBRTC_LOG_ENABLED" envDefault:"false"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Calls: CallsConfig{
			UserCallMaxAgeDays: constants.DefaultUserCallMaxAgeDays,
			DispatchTimeout:    constants.DefaultDispatchTimeout,
			MaxListeners:       constants.DefaultMaxListenerConnections,
		},
		JWT: JWTConfig{Audience: constants.DefaultAudience},
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// Validate critical configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "cockroach", "sqlite":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	if c.Calls.UserCallMaxAgeDays < 0 {
		return fmt.Errorf("USER_CALL_MAX_AGE_DAYS must not be negative")
	}
	if c.Calls.DispatchTimeout <= 0 {
		return fmt.Errorf("DISPATCH_TIMEOUT must be positive")
	}

	// Validate JWT secret in production
	if c.Server.Environment == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
	}

	return nil
}

// PostgresDSN builds the connection string for the cockroach store
func (s StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, s.Database, s.SSLMode)
}

// Addr returns the Redis host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
