package config

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvConfig lists the environment variables WithEnv reads. Unset variables
// leave the current configuration untouched.
type EnvConfig struct {
	Port        string `env:"CONTENT_LEDGER_PORT" env-description:"HTTP listen port"`
	Environment string `env:"CONTENT_LEDGER_ENVIRONMENT" env-description:"development, production or testing"`

	DatabaseURL string `env:"CONTENT_LEDGER_DATABASE_URL" env-description:"memory, sqlite://path or postgres://..."`
	DBSchema    string `env:"CONTENT_LEDGER_DB_SCHEMA" env-description:"Postgres schema"`
	AutoMigrate string `env:"CONTENT_LEDGER_AUTO_MIGRATE" env-description:"apply Postgres migrations on startup (true or false)"`

	ModuleID   string `env:"CONTENT_LEDGER_MODULE_ID" env-description:"8-byte module identifier mixed into content keys"`
	BeaconSeed string `env:"CONTENT_LEDGER_BEACON_SEED" env-description:"hex encoded randomness beacon seed"`
	JWTSecret  string `env:"CONTENT_LEDGER_JWT_SECRET" env-description:"HS256 secret for bearer tokens"`

	EventSink         string `env:"CONTENT_LEDGER_EVENT_SINK" env-description:"noop, log, s3 or webhook"`
	S3Bucket          string `env:"CONTENT_LEDGER_EVENT_S3_BUCKET" env-description:"event archive bucket"`
	S3Prefix          string `env:"CONTENT_LEDGER_EVENT_S3_PREFIX" env-description:"event archive key prefix"`
	S3Region          string `env:"CONTENT_LEDGER_EVENT_S3_REGION" env-description:"event archive region"`
	S3Endpoint        string `env:"CONTENT_LEDGER_EVENT_S3_ENDPOINT" env-description:"S3-compatible endpoint"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-description:"AWS access key ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-description:"AWS secret access key"`
	WebhookURL        string `env:"CONTENT_LEDGER_EVENT_WEBHOOK_URL" env-description:"event delivery URL"`
}

// EnvUsage returns a description of every variable WithEnv reads
func EnvUsage() string {
	text, err := cleanenv.GetDescription(&EnvConfig{}, nil)
	if err != nil {
		return ""
	}
	return text
}

// WithEnv applies environment variable overrides.
//
// Setting CONTENT_LEDGER_EVENT_S3_BUCKET or CONTENT_LEDGER_EVENT_WEBHOOK_URL
// without CONTENT_LEDGER_EVENT_SINK selects that sink.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env EnvConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}

		if env.Port != "" {
			c.Port = env.Port
		}
		if env.Environment != "" {
			c.Environment = env.Environment
		}

		if env.DatabaseURL != "" {
			dbType, url, err := parseDatabaseURL(env.DatabaseURL)
			if err != nil {
				return err
			}
			c.DatabaseType = dbType
			c.DatabaseURL = url
		}
		if env.DBSchema != "" {
			c.DBSchema = env.DBSchema
		}
		if env.AutoMigrate != "" {
			v, err := strconv.ParseBool(env.AutoMigrate)
			if err != nil {
				return fmt.Errorf("invalid CONTENT_LEDGER_AUTO_MIGRATE: %w", err)
			}
			c.AutoMigrate = v
		}

		if env.ModuleID != "" {
			c.ModuleID = env.ModuleID
		}
		if env.BeaconSeed != "" {
			seed, err := hex.DecodeString(env.BeaconSeed)
			if err != nil {
				return fmt.Errorf("invalid CONTENT_LEDGER_BEACON_SEED: %w", err)
			}
			c.BeaconSeed = seed
		}
		if env.JWTSecret != "" {
			c.JWTSecret = env.JWTSecret
		}

		applyEventSinkEnv(env, c)
		return nil
	}
}

func applyEventSinkEnv(env EnvConfig, c *ServerConfig) {
	if env.S3Bucket != "" {
		c.S3.Bucket = env.S3Bucket
		c.EventSink = "s3"
	}
	if env.S3Prefix != "" {
		c.S3.Prefix = env.S3Prefix
	}
	if env.S3Region != "" {
		c.S3.Region = env.S3Region
	}
	if env.S3Endpoint != "" {
		c.S3.Endpoint = env.S3Endpoint
		c.S3.UsePathStyle = true
	}
	if env.S3AccessKeyID != "" {
		c.S3.AccessKeyID = env.S3AccessKeyID
	}
	if env.S3SecretAccessKey != "" {
		c.S3.SecretAccessKey = env.S3SecretAccessKey
	}
	if env.WebhookURL != "" {
		c.WebhookURL = env.WebhookURL
		c.EventSink = "webhook"
	}
	if env.EventSink != "" {
		c.EventSink = env.EventSink
	}
}
