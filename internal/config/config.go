package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/npezzotti/guild-relay/internal/database"
	"golang.org/x/crypto/bcrypt"
)

// Options are the raw settings read from the environment and command line.
type Options struct {
	ServerAddr            string        `env:"RELAY_ADDR" envDefault:"localhost:8000"`
	DatabaseDriver        string        `env:"RELAY_DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseDSN           string        `env:"RELAY_DATABASE_DSN" envDefault:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	DiscordToken          string        `env:"RELAY_DISCORD_TOKEN"`
	SigningKey            string        `env:"RELAY_SIGNING_KEY"`
	DashboardPasswordHash string        `env:"RELAY_DASHBOARD_PASSWORD_HASH"`
	AllowedOrigins        []string      `env:"RELAY_ALLOWED_ORIGINS" envSeparator:","`
	PersistTimeout        time.Duration `env:"RELAY_PERSIST_TIMEOUT" envDefault:"5s"`
	ResolveTimeout        time.Duration `env:"RELAY_RESOLVE_TIMEOUT" envDefault:"2s"`
	DeliverUnpersisted    bool          `env:"RELAY_DELIVER_UNPERSISTED" envDefault:"true"`
	TypingSweepInterval   time.Duration `env:"RELAY_TYPING_SWEEP_INTERVAL" envDefault:"5s"`
	TypingTTL             time.Duration `env:"RELAY_TYPING_TTL" envDefault:"10s"`
	PresencePollInterval  time.Duration `env:"RELAY_PRESENCE_POLL_INTERVAL" envDefault:"20s"`
	StatusLogInterval     time.Duration `env:"RELAY_STATUS_LOG_INTERVAL" envDefault:"60s"`
}

// LoadOptions reads Options from the environment, after loading a .env
// file from the working directory when one exists.
func LoadOptions() (Options, error) {
	_ = godotenv.Load()

	var opts Options
	if err := env.Parse(&opts); err != nil {
		return Options{}, fmt.Errorf("parse environment: %w", err)
	}
	return opts, nil
}

type Config struct {
	ServerAddr            string
	DatabaseDriver        database.Dialect
	DatabaseDSN           string
	DiscordToken          string
	SigningKey            []byte
	DashboardPasswordHash []byte
	AllowedOrigins        []string
	PersistTimeout        time.Duration
	ResolveTimeout        time.Duration
	DeliverUnpersisted    bool
	TypingSweepInterval   time.Duration
	TypingTTL             time.Duration
	PresencePollInterval  time.Duration
	StatusLogInterval     time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(opts Options) (*Config, error) {
	if opts.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if opts.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if opts.DiscordToken == "" {
		return nil, fmt.Errorf("discord token cannot be empty")
	}
	if opts.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if opts.DashboardPasswordHash == "" {
		return nil, fmt.Errorf("dashboard password hash cannot be empty")
	}

	driver, ok := database.ParseDialect(opts.DatabaseDriver)
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", opts.DatabaseDriver)
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(opts.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	passwordHash := []byte(opts.DashboardPasswordHash)
	if _, err := bcrypt.Cost(passwordHash); err != nil {
		return nil, fmt.Errorf("dashboard password hash: %w", err)
	}

	intervals := map[string]time.Duration{
		"persist timeout":        opts.PersistTimeout,
		"resolve timeout":        opts.ResolveTimeout,
		"typing sweep interval":  opts.TypingSweepInterval,
		"typing ttl":             opts.TypingTTL,
		"presence poll interval": opts.PresencePollInterval,
		"status log interval":    opts.StatusLogInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	return &Config{
		ServerAddr:            opts.ServerAddr,
		DatabaseDriver:        driver,
		DatabaseDSN:           opts.DatabaseDSN,
		DiscordToken:          opts.DiscordToken,
		SigningKey:            signingKey,
		DashboardPasswordHash: passwordHash,
		AllowedOrigins:        opts.AllowedOrigins,
		PersistTimeout:        opts.PersistTimeout,
		ResolveTimeout:        opts.ResolveTimeout,
		DeliverUnpersisted:    opts.DeliverUnpersisted,
		TypingSweepInterval:   opts.TypingSweepInterval,
		TypingTTL:             opts.TypingTTL,
		PresencePollInterval:  opts.PresencePollInterval,
		StatusLogInterval:     opts.StatusLogInterval,
	}, nil
}
