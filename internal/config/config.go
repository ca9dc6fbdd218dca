// Package config holds the PMAPI runtime configuration. The configuration
// is read once at startup from viper (config file, environment, flags) into
// an immutable struct that is passed by reference to the components that
// need it.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// APIVersion is the PMAPI JSON API implementation version reported in the
// "api" metadata object of every response.
const APIVersion = 1

// Config is the effective PMAPI configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Command  CommandConfig  `mapstructure:"command" yaml:"command"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	RateLimit       int           `mapstructure:"rate_limit" yaml:"rate_limit"` // requests/min per IP, 0 disables
}

// DatabaseConfig configures the embedded SQLite database.
type DatabaseConfig struct {
	File         string `mapstructure:"file" yaml:"file"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

// CommandConfig controls the async command polling loop. A command POST
// inserts a row and polls for the instrument daemon to fill in the result;
// Timeout bounds the wait and PollInterval paces the polling queries.
type CommandConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
}

// SetDefaults registers the default values on a viper instance. Call before
// reading the config file so that absent keys resolve to usable values.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("database.file", "pmapi.sqlite3")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("command.timeout", 1*time.Second)
	v.SetDefault("command.poll_interval", 200*time.Millisecond)
	v.SetDefault("log.level", "info")
}

// Load unmarshals the effective viper state into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values that would misbehave at
// runtime.
func (c *Config) Validate() error {
	if c.Database.File == "" {
		return fmt.Errorf("database.file must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Command.Timeout <= 0 {
		return fmt.Errorf("command.timeout must be positive")
	}
	if c.Command.PollInterval <= 0 {
		return fmt.Errorf("command.poll_interval must be positive")
	}
	if c.Command.PollInterval > c.Command.Timeout {
		return fmt.Errorf("command.poll_interval exceeds command.timeout")
	}
	return nil
}
