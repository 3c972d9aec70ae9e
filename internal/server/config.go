// Package server provides configuration helpers that define runtime
// defaults and validation for the Roomcast service.
package server

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the server configuration settings.
type Config struct {
	Port            string        `envconfig:"SERVER_PORT" default:":8080"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	MaxFrameSize    int64         `envconfig:"MAX_FRAME_SIZE" default:"4096"`
	SendBuffer      int           `envconfig:"SEND_BUFFER" default:"256"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFile         string        `envconfig:"LOG_FILE"`
}

// NewConfig returns a Config populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Port:            ":8080",
		AllowedOrigins:  []string{"http://localhost:8080"},
		MaxFrameSize:    4096,
		SendBuffer:      256,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// NewConfigFromEnv builds a Config from environment variables, falling back
// to defaults for anything unset.
func NewConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	cfg.sanitize()
	return cfg, nil
}

func (c *Config) sanitize() {
	c.Port = strings.TrimSpace(c.Port)
	if c.Port == "" {
		c.Port = ":8080"
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = 4096
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}
