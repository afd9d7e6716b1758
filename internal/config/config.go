// Package config centralizes configuration loading from a local .env file
// and the process environment, following the 12-Factor App methodology.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure, grouped by functional domain.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds TCP listener settings.
type ServerConfig struct {
	Port       int  // SERVER_PORT
	DoCaching  bool // DO_CACHING
	MaxRequest int  // compile-time max in spec, overridable for tests
}

// Addr returns the "host:port" string net.Listen expects.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// DatabaseConfig holds the DDL snippets and DSN for the relational store.
type DatabaseConfig struct {
	DSN              string
	AuthDatabaseInit string // AUTH_DATABASE_INIT
	UserDatabaseInit string // USER_DATABASE_INIT
}

// AuthConfig holds the HMAC secret used to sign session tokens, and the
// per-user actor's idle-timeout tunables.
type AuthConfig struct {
	Secret             string // SECRET
	TokenExpiryMinutes int    // TOKEN_EXPIRY_MINUTES, default 60
	Timeout            time.Duration
	SweepInterval      time.Duration
}

// LoggingConfig controls zap + lumberjack output.
type LoggingConfig struct {
	Level string // LOG_LEVEL
	File  string // LOG_FILE, empty means stderr only
}

// MetricsConfig bounds the metrics actor's inbound channel.
type MetricsConfig struct {
	ChannelCapacity int // METRICS_CHANNEL_CAPACITY
}

const defaultMaxRequestBytes = 4096

// Load reads a local .env file (if present) and the process environment,
// and returns a fully populated Config with defaults applied.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading .env: %w", err)
		}
	}

	v.SetDefault("SERVER_PORT", 3000)
	v.SetDefault("DO_CACHING", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "budgetserver")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("TOKEN_EXPIRY_MINUTES", 60)
	v.SetDefault("SECONDS_TO_TIMEOUT_USER_THREAD", 1800)
	v.SetDefault("SESSION_SWEEP_INTERVAL_MS", 60000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("METRICS_CHANNEL_CAPACITY", 256)

	secret := v.GetString("SECRET")
	if secret == "" {
		return nil, fmt.Errorf("SECRET must be set and non-empty")
	}

	authInit := v.GetString("AUTH_DATABASE_INIT")
	if authInit == "" {
		return nil, fmt.Errorf("AUTH_DATABASE_INIT must be set")
	}
	userInit := v.GetString("USER_DATABASE_INIT")
	if userInit == "" {
		return nil, fmt.Errorf("USER_DATABASE_INIT must be set")
	}

	dsn := v.GetString("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			v.GetString("DB_HOST"), v.GetInt("DB_PORT"), v.GetString("DB_USER"),
			v.GetString("DB_PASSWORD"), v.GetString("DB_NAME"), v.GetString("DB_SSLMODE"))
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:       v.GetInt("SERVER_PORT"),
			DoCaching:  v.GetBool("DO_CACHING"),
			MaxRequest: defaultMaxRequestBytes,
		},
		Database: DatabaseConfig{
			DSN:              dsn,
			AuthDatabaseInit: authInit,
			UserDatabaseInit: userInit,
		},
		Auth: AuthConfig{
			Secret:             secret,
			TokenExpiryMinutes: v.GetInt("TOKEN_EXPIRY_MINUTES"),
			Timeout:            time.Duration(v.GetInt("SECONDS_TO_TIMEOUT_USER_THREAD")) * time.Second,
			SweepInterval:      time.Duration(v.GetInt("SESSION_SWEEP_INTERVAL_MS")) * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
			File:  v.GetString("LOG_FILE"),
		},
		Metrics: MetricsConfig{
			ChannelCapacity: v.GetInt("METRICS_CHANNEL_CAPACITY"),
		},
	}

	return cfg, nil
}
