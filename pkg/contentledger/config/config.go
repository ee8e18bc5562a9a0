package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tendant/content-ledger/pkg/contentledger"
	s3sink "github.com/tendant/content-ledger/pkg/contentledger/events/s3"
	"github.com/tendant/content-ledger/pkg/contentledger/events/webhook"
	"github.com/tendant/content-ledger/pkg/contentledger/repo/memory"
	repopg "github.com/tendant/content-ledger/pkg/contentledger/repo/postgres"
	reposqlite "github.com/tendant/content-ledger/pkg/contentledger/repo/sqlite"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		DBSchema:     "ledger",
		AutoMigrate:  true,
		ModuleID:     contentledger.DefaultModuleID,
		EventSink:    "log",
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "ledger-events",
		},
	}
}

// ServerConfig represents configuration for the content ledger service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseType string // "memory", "sqlite", "postgres"
	DatabaseURL  string // Postgres URL or SQLite path
	DBSchema     string // Postgres schema to use (default: ledger)
	AutoMigrate  bool   // Apply Postgres migrations on startup

	// Key derivation
	ModuleID   string
	BeaconSeed []byte // empty means a fresh random beacon per process

	// Authentication
	JWTSecret string

	// Event delivery
	EventSink  string // "noop", "log", "s3", "webhook"
	S3         S3Config
	WebhookURL string

	Logger *slog.Logger
}

// S3Config configures the S3 event archive
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// IsDevelopment reports whether the server runs in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.Environment {
	case "development", "production", "testing":
	default:
		return fmt.Errorf("environment must be 'development', 'production' or 'testing', got: %s", c.Environment)
	}

	switch c.DatabaseType {
	case "memory":
	case "sqlite":
		if c.DatabaseURL == "" {
			return errors.New("database path is required when using sqlite")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	default:
		return errors.New("database_type must be 'memory', 'sqlite' or 'postgres'")
	}

	if len(c.ModuleID) != contentledger.ModuleIDSize {
		return fmt.Errorf("module id must be %d bytes, got %q", contentledger.ModuleIDSize, c.ModuleID)
	}
	if n := len(c.BeaconSeed); n > 64 {
		return fmt.Errorf("beacon seed must be at most 64 bytes, got %d", n)
	}

	if c.Environment == "production" && c.JWTSecret == "" {
		return errors.New("jwt secret is required in production")
	}

	switch c.EventSink {
	case "noop", "log":
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required when event sink is 's3'")
		}
	case "webhook":
		if c.WebhookURL == "" {
			return errors.New("webhook url is required when event sink is 'webhook'")
		}
	default:
		return fmt.Errorf("unsupported event sink: %s", c.EventSink)
	}

	return nil
}

// Ledger is a service built from configuration together with the
// resources it owns
type Ledger struct {
	Service    contentledger.Service
	Repository contentledger.Repository
}

// Close releases the repository
func (l *Ledger) Close() error {
	return l.Repository.Close()
}

// Build creates the repository, event sink and service described by the
// configuration
func (c *ServerConfig) Build(ctx context.Context) (*Ledger, error) {
	logger := c.logger()

	repo, err := c.BuildRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	options := []contentledger.Option{
		contentledger.WithRepository(repo),
		contentledger.WithModuleID(c.ModuleID),
		contentledger.WithLogger(logger),
	}

	if len(c.BeaconSeed) > 0 {
		beacon, err := contentledger.NewBeaconRandomness(c.BeaconSeed)
		if err != nil {
			repo.Close()
			return nil, err
		}
		options = append(options, contentledger.WithRandomness(beacon))
	}

	sink, err := c.buildEventSink()
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to build event sink: %w", err)
	}
	options = append(options, contentledger.WithEventSink(sink))

	svc, err := contentledger.New(options...)
	if err != nil {
		repo.Close()
		return nil, err
	}

	logger.Info("Content ledger configured",
		"database", c.DatabaseType, "event_sink", c.EventSink, "environment", c.Environment)
	return &Ledger{Service: svc, Repository: repo}, nil
}

// BuildRepository creates a Repository based on the configuration
func (c *ServerConfig) BuildRepository(ctx context.Context) (contentledger.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		repo, err := reposqlite.Open(c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "postgres":
		if c.AutoMigrate {
			if err := repopg.Migrate(ctx, c.DatabaseURL, c.DBSchema); err != nil {
				return nil, err
			}
		}
		repo, err := repopg.Open(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) buildEventSink() (contentledger.EventSink, error) {
	switch c.EventSink {
	case "noop":
		return contentledger.NewNoopEventSink(), nil
	case "log":
		return contentledger.NewLoggingEventSink(c.logger()), nil
	case "s3":
		sink, err := s3sink.New(s3sink.Config{
			Region:          c.S3.Region,
			Bucket:          c.S3.Bucket,
			Prefix:          c.S3.Prefix,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			Endpoint:        c.S3.Endpoint,
			UsePathStyle:    c.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "webhook":
		sink, err := webhook.New(webhook.Config{URL: c.WebhookURL, Logger: c.logger()})
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unsupported event sink: %s", c.EventSink)
	}
}

func (c *ServerConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// parseDatabaseURL maps a DATABASE_URL value onto a database type and the
// URL or path that type expects
func parseDatabaseURL(raw string) (dbType, url string, err error) {
	switch {
	case raw == "" || raw == "memory" || raw == "memory://":
		return "memory", "", nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return "", "", errors.New("sqlite path cannot be empty in DATABASE_URL")
		}
		return "sqlite", path, nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return "postgres", raw, nil
	}
	return "", "", fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'sqlite://path' or 'postgres://...')", raw)
}
