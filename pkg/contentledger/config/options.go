package config

import (
	"fmt"
	"log/slog"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabaseURL configures the database from a URL: "memory",
// "sqlite://path" or "postgres://..."
func WithDatabaseURL(raw string) Option {
	return func(c *ServerConfig) error {
		dbType, url, err := parseDatabaseURL(raw)
		if err != nil {
			return err
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithModuleID sets the module identifier used in content key derivation
func WithModuleID(id string) Option {
	return func(c *ServerConfig) error {
		c.ModuleID = id
		return nil
	}
}

// WithBeaconSeed pins the randomness beacon seed
func WithBeaconSeed(seed []byte) Option {
	return func(c *ServerConfig) error {
		c.BeaconSeed = append([]byte(nil), seed...)
		return nil
	}
}

// WithJWTSecret sets the HS256 secret used to verify bearer tokens
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithEventSink selects the event sink type
func WithEventSink(sink string) Option {
	return func(c *ServerConfig) error {
		c.EventSink = sink
		return nil
	}
}

// WithS3EventArchive archives events to an S3 bucket
func WithS3EventArchive(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		if s3.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		if s3.Region == "" {
			s3.Region = c.S3.Region
		}
		if s3.Prefix == "" {
			s3.Prefix = c.S3.Prefix
		}
		c.EventSink = "s3"
		c.S3 = s3
		return nil
	}
}

// WithWebhook delivers events to url
func WithWebhook(url string) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("webhook url cannot be empty")
		}
		c.EventSink = "webhook"
		c.WebhookURL = url
		return nil
	}
}

// WithLogger sets the logger handed to the service and sinks
func WithLogger(logger *slog.Logger) Option {
	return func(c *ServerConfig) error {
		c.Logger = logger
		return nil
	}
}
