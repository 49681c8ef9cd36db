package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds the application configuration.
type Config struct {
	DBPath           string          `yaml:"db_path" koanf:"db_path" validate:"required"`
	DefaultTimeout   time.Duration   `yaml:"default_timeout" koanf:"default_timeout" validate:"gt=0"`
	StaleTime        time.Duration   `yaml:"stale_time" koanf:"stale_time" validate:"gte=0"`
	MaxResponseBytes int64           `yaml:"max_response_bytes" koanf:"max_response_bytes" validate:"gte=0"`
	HistoryLimit     int             `yaml:"history_limit" koanf:"history_limit" validate:"gte=0"`
	LogLevel         string          `yaml:"log_level" koanf:"log_level" validate:"oneof=trace debug info warn error disabled"`
	LogFormat        string          `yaml:"log_format" koanf:"log_format" validate:"oneof=console json"`
	Proxy            string          `yaml:"proxy" koanf:"proxy" validate:"omitempty,url"`
	NoProxy          string          `yaml:"no_proxy" koanf:"no_proxy"`
	Insecure         bool            `yaml:"insecure" koanf:"insecure"`
	Telemetry        TelemetryConfig `yaml:"telemetry" koanf:"telemetry"`
}

// TelemetryConfig configures OTLP span export. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" koanf:"endpoint"`
	Insecure    bool   `yaml:"insecure" koanf:"insecure"`
	ServiceName string `yaml:"service_name" koanf:"service_name"`
	Headers     string `yaml:"headers" koanf:"headers"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DBPath:           DefaultDBPath(),
		DefaultTimeout:   30 * time.Second,
		StaleTime:        30 * time.Second,
		MaxResponseBytes: 10 << 20,
		LogLevel:         "warn",
		LogFormat:        "console",
		Telemetry: TelemetryConfig{
			ServiceName: "reqdeck",
		},
	}
}

// DefaultPath is the config file read when --config is not given.
func DefaultPath() string {
	return filepath.Join(homeDir(), ".config", "reqdeck", "config.yaml")
}

// DefaultDBPath is the database used when none is configured.
func DefaultDBPath() string {
	return filepath.Join(homeDir(), ".local", "share", "reqdeck", "reqdeck.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
