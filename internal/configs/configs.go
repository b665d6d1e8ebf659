/*
Package configs is responsible for loading and parsing the application's configuration settings.

Configuration comes from environment variables (with a .env file honored in
development), covering the HTTP listen port, CORS origins, and the explicit
bounds of the realtime hub: connection rate limits and per-client send buffers.
*/
package configs

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig contains all configuration parameters required for the server to run.
// All values are loaded from environment variables.
type AppConfig struct {
	// Environment selects development or production behavior (log format, origin checks).
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Port is the HTTP listen port.
	Port int `envconfig:"PORT" default:"8080"`

	// AllowedOrigins lists the origins accepted for CORS and WebSocket upgrades.
	// Empty means same-origin only outside development.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	// WSConnRate is the allowed WebSocket connection attempts per second per IP.
	WSConnRate float64 `envconfig:"WS_CONN_RATE" default:"1"`

	// WSConnBurst is the burst capacity for WebSocket connection attempts per IP.
	WSConnBurst int `envconfig:"WS_CONN_BURST" default:"10"`

	// SendBufferSize is the per-connection outbound frame queue length. A client
	// that cannot drain this buffer starts losing frames.
	SendBufferSize int `envconfig:"SEND_BUFFER_SIZE" default:"256"`

	// MaxContentBytes caps the content length of a single chat message.
	MaxContentBytes int `envconfig:"MAX_CONTENT_BYTES" default:"5000"`
}

// LoadConfig reads and validates the application configuration from the environment.
// A .env file in the working directory is loaded first when present.
func LoadConfig() (*AppConfig, error) {
	// missing .env is not an error; real environments set variables directly
	_ = godotenv.Load()

	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment configuration: %w", err)
	}

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (1024-65535) to avoid privileged ports", cfg.Port)
	}

	if cfg.SendBufferSize <= 0 {
		return nil, fmt.Errorf("SEND_BUFFER_SIZE must be positive, got %d", cfg.SendBufferSize)
	}

	if cfg.MaxContentBytes <= 0 {
		return nil, fmt.Errorf("MAX_CONTENT_BYTES must be positive, got %d", cfg.MaxContentBytes)
	}

	return cfg, nil
}
