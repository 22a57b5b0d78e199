package config

import (
	"encoding/base64"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr      string   `env:"NEARCHAT_ADDR" envDefault:"localhost:8000"`
	DatabaseDSN     string   `env:"NEARCHAT_DSN"`
	SigningSecret   string   `env:"NEARCHAT_SIGNING_KEY"`
	AllowedOrigins  []string `env:"NEARCHAT_ALLOWED_ORIGINS" envSeparator:","`
	DefaultRadiusKm float64  `env:"NEARCHAT_DEFAULT_RADIUS_KM" envDefault:"5"`

	// SigningKey is the decoded form of SigningSecret.
	SigningKey []byte `env:"-"`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

// Load reads configuration from the environment, with an optional .env
// file for local development.
func Load() (*Config, error) {
	// a missing .env file is fine, real environments set variables directly
	_ = godotenv.Load(".env")

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	if c.SigningSecret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}
	if c.DefaultRadiusKm <= 0 {
		return fmt.Errorf("default radius must be positive")
	}

	signingKey, err := decodeSigningSecret(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	return nil
}
