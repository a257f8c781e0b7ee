// internal/config/config.go
//
// Process configuration, read from the environment (a .env file is loaded
// by main before Load runs).

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

type Config struct {
	Port         string `env:"PORT" envDefault:"5175"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	ClientOrigin string `env:"CLIENT_ORIGIN" envDefault:"http://localhost:5173"`

	Store  string `env:"STORE" envDefault:"sqlite"`
	DBPath string `env:"DB_PATH" envDefault:"./data/orkbattle.db"`

	JWTSecret  string        `env:"JWT_SECRET" envDefault:"dev_secret_change_me"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"720h"`

	GeminiAPIKey    string        `env:"GEMINI_API_KEY"`
	GeminiModel     string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	NarratorTimeout time.Duration `env:"NARRATOR_TIMEOUT" envDefault:"4s"`
	NarratorRetries int           `env:"NARRATOR_RETRIES" envDefault:"2"`

	MaxWordsPerTurn int `env:"MAX_WORDS_PER_TURN" envDefault:"3"`
	MaxWordsCap     int `env:"MAX_WORDS_CAP" envDefault:"5"`

	DailySalt string `env:"DAILY_SALT" envDefault:"local_dev_salt"`
	WordsFile string `env:"WORDS_FILE"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Store != StoreSQLite && c.Store != StoreMemory {
		errs = append(errs, fmt.Errorf("STORE must be %q or %q, got %q", StoreSQLite, StoreMemory, c.Store))
	}
	if c.Store == StoreSQLite && c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH is required for the sqlite store"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.NarratorTimeout <= 0 {
		errs = append(errs, errors.New("NARRATOR_TIMEOUT must be positive"))
	}
	if c.NarratorRetries < 0 {
		errs = append(errs, errors.New("NARRATOR_RETRIES must not be negative"))
	}
	if c.MaxWordsPerTurn < 1 {
		errs = append(errs, errors.New("MAX_WORDS_PER_TURN must be at least 1"))
	}
	if c.MaxWordsCap < c.MaxWordsPerTurn {
		errs = append(errs, errors.New("MAX_WORDS_CAP must not be below MAX_WORDS_PER_TURN"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
