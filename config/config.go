/*
Package config loads runtime configuration for the billing engine.

PURPOSE:
  Centralizes all tunables: HTTP server, database path, closing scheduler.
  Values are resolved in order of precedence:
    1. Environment variables (FLUXO_ prefix, e.g. FLUXO_SERVER_PORT)
    2. Config file (config.yaml next to the binary or in ./config)
    3. Built-in defaults

  A missing config file is not an error; defaults plus environment
  variables are enough to run.

USAGE:
  cfg, err := config.Load("")
  if err != nil {
      log.Fatal(err)
  }
*/
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig holds closing sweep settings.
type SchedulerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// Load reads configuration from the given file, or from the default
// search paths when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("database.path", "./data/fluxo.db")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.check_interval", 24*time.Hour)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("FLUXO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// No config file; defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
