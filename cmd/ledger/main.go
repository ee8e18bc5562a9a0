package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tendant/content-ledger/pkg/contentledger"
	"github.com/tendant/content-ledger/pkg/contentledger/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	databaseURL string
	schema      string
	caller      string
	verbose     bool
}

func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Content ledger CLI",
		Long: `Content ledger command line interface

Registers content, manages leases and reads access policies directly
against a ledger database. Uses a SQLite file in the working directory by
default.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.databaseURL, "db", envOr("CONTENT_LEDGER_DATABASE_URL", "sqlite://ledger.db"), "database URL (memory, sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&opts.schema, "schema", envOr("CONTENT_LEDGER_DB_SCHEMA", "ledger"), "postgres schema")
	rootCmd.PersistentFlags().StringVar(&opts.caller, "caller", os.Getenv("CONTENT_LEDGER_CALLER"), "identity the command runs as")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(NewCreateCommand(opts))
	rootCmd.AddCommand(NewListCommand(opts))
	rootCmd.AddCommand(NewShowCommand(opts))
	rootCmd.AddCommand(NewLeaseCommand(opts))
	rootCmd.AddCommand(NewRevokeCommand(opts))
	rootCmd.AddCommand(NewPolicyCommand(opts))
	rootCmd.AddCommand(NewCounterCommand(opts))
	rootCmd.AddCommand(NewTokenCommand())
	rootCmd.AddCommand(NewMigrateCommand(opts))

	return rootCmd
}

func (o *globalOptions) serverConfig() (*config.ServerConfig, error) {
	logLevel := slog.LevelWarn
	if o.verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	return config.Load(
		config.WithDatabaseURL(o.databaseURL),
		config.WithDatabaseSchema(o.schema),
		config.WithEventSink("log"),
		config.WithLogger(logger),
	)
}

// openLedger builds the ledger described by the global flags. The caller
// must close it.
func (o *globalOptions) openLedger(ctx context.Context) (*config.Ledger, error) {
	cfg, err := o.serverConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Build(ctx)
}

func (o *globalOptions) identity() (contentledger.Identity, error) {
	if o.caller == "" {
		return "", fmt.Errorf("--caller is required: %w", contentledger.ErrUnauthenticated)
	}
	return contentledger.Identity(o.caller), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
