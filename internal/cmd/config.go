package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds the service settings. Database settings live in the
// dbconfig package.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	NATSURL  string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	RoundTimeout    time.Duration `env:"ROUND_TIMEOUT" envDefault:"60s"`
	WarningLead     time.Duration `env:"ROUND_WARNING_LEAD" envDefault:"10s"`
	ContextMessages int           `env:"ROUND_CONTEXT_MESSAGES" envDefault:"5"`

	SelectionLookback time.Duration `env:"SELECTION_LOOKBACK" envDefault:"8760h"`
	MinMessageAge     time.Duration `env:"SELECTION_MIN_AGE" envDefault:"24h"`
	SearchLimit       int           `env:"SELECTION_SEARCH_LIMIT" envDefault:"100"`
	MaxRetries        int           `env:"SELECTION_MAX_RETRIES" envDefault:"5"`
	MinMessageLength  int           `env:"SELECTION_MIN_LENGTH" envDefault:"200"`
}

func loadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
