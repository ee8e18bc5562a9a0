package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/tendant/content-ledger/pkg/contentledger/api"
	"github.com/tendant/content-ledger/pkg/contentledger/config"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file to load before reading the environment")
	usage := flag.Bool("env-usage", false, "print the supported environment variables and exit")
	flag.Parse()

	if *usage {
		fmt.Println(config.EnvUsage())
		return
	}

	// Load .env if present; real environment variables take precedence
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	serverConfig, err := config.Load(config.WithEnv(), config.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, err := serverConfig.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build ledger: %w", err)
	}
	defer ledger.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", serverConfig.Port),
		Handler:           routes(ledger, serverConfig, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Content ledger server starting",
			"port", serverConfig.Port, "environment", serverConfig.Environment, "database", serverConfig.DatabaseType)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exiting")
	return nil
}

func routes(ledger *config.Ledger, serverConfig *config.ServerConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	opts := []api.HandlerOption{
		api.WithLogger(logger),
		api.WithHeaderIdentity(serverConfig.IsDevelopment()),
	}
	if serverConfig.JWTSecret != "" {
		opts = append(opts, api.WithJWTAuth(api.NewJWTAuth(serverConfig.JWTSecret)))
	}
	handler := api.NewHandler(ledger.Service, opts...)

	r.Get("/health", handler.Health)
	r.Mount("/api/v1", handler.Routes())

	return r
}
