// Package main provides the operational entry point for the interpretation
// engine: configuration validation, schema migrations and connectivity
// checks.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/allele-interp-engine/internal/config"
	"github.com/allele-interp-engine/internal/database"
	"github.com/allele-interp-engine/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		showHelp()
		os.Exit(1)
	}

	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(configManager)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	switch os.Args[1] {
	case "validate":
		err = runValidate(configManager, logger)
	case "migrate":
		err = runMigrate(ctx, configManager, logger)
	case "status":
		err = runStatus(ctx, configManager, logger)
	case "help", "--help", "-h":
		showHelp()
		return
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		showHelp()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func newLogger(configManager *config.Manager) *logrus.Logger {
	logger := logrus.New()

	cfg := configManager.GetConfig()
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}

func runValidate(configManager *config.Manager, logger *logrus.Logger) error {
	if err := configManager.Validate(); err != nil {
		return err
	}

	cfg := configManager.GetConfig()
	logger.WithFields(logrus.Fields{
		"classification_options": len(cfg.Engine.Classification.Options),
		"database":               cfg.Database.Database,
	}).Info("Configuration is valid")
	return nil
}

func runMigrate(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	runner, err := database.NewMigrationRunner(
		configManager.GetDatabaseURL(),
		cfg.Database.MigrationsPath,
		logger,
	)
	if err != nil {
		return err
	}
	defer runner.Close()

	return runner.Up(ctx)
}

func runStatus(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Warn("Postgres is not reachable")
	} else {
		defer db.Close()
		if err := db.Health(ctx); err != nil {
			logger.WithError(err).Warn("Postgres health check failed")
		} else {
			logger.WithField("database", cfg.Database.Database).Info("Postgres is reachable")
		}
	}

	if cfg.Store.Path != "" {
		s, err := store.New(cfg.Store.Path)
		if err != nil {
			logger.WithError(err).Warn("Standalone store is not usable")
		} else {
			s.Close()
			logger.WithField("path", cfg.Store.Path).Info("Standalone store is usable")
		}
	}

	return nil
}

func showHelp() {
	help := `
Allele Interpretation Engine

Usage:
  interp-engine <command>

Commands:
  validate  Validate current configuration
  migrate   Run pending database migrations
  status    Check database and store reachability
`
	fmt.Println(help)
}
