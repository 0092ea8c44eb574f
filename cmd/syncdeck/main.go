// Command syncdeck runs the data-sync control plane: the HTTP API behind
// the dashboard, the sync engine, and the runner resolver.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/avelier/syncdeck/internal/api"
	"github.com/avelier/syncdeck/internal/config"
	"github.com/avelier/syncdeck/internal/engine"
	"github.com/avelier/syncdeck/internal/filestore"
	"github.com/avelier/syncdeck/internal/model"
	"github.com/avelier/syncdeck/internal/runner"
	"github.com/avelier/syncdeck/internal/store"
)

// defaultCatalog is the integration catalog seeded on first boot. Seeding
// is idempotent; existing entries are left untouched.
var defaultCatalog = []model.Integration{
	{ID: "postgres", Name: "PostgreSQL", Kind: model.KindSource, Version: "1.4.0", DocsURL: "https://docs.syncdeck.dev/sources/postgres"},
	{ID: "mysql", Name: "MySQL", Kind: model.KindSource, Version: "1.2.1", DocsURL: "https://docs.syncdeck.dev/sources/mysql"},
	{ID: "salesforce", Name: "Salesforce", Kind: model.KindSource, Version: "0.9.3", DocsURL: "https://docs.syncdeck.dev/sources/salesforce"},
	{ID: "stripe", Name: "Stripe", Kind: model.KindSource, Version: "1.1.0", DocsURL: "https://docs.syncdeck.dev/sources/stripe"},
	{ID: "s3", Name: "Amazon S3", Kind: model.KindDestination, Version: "1.3.2", DocsURL: "https://docs.syncdeck.dev/destinations/s3"},
	{ID: "bigquery", Name: "BigQuery", Kind: model.KindDestination, Version: "1.0.7", DocsURL: "https://docs.syncdeck.dev/destinations/bigquery"},
	{ID: "snowflake", Name: "Snowflake", Kind: model.KindDestination, Version: "1.5.0", DocsURL: "https://docs.syncdeck.dev/destinations/snowflake"},
	{ID: "warehouse", Name: "Local Warehouse", Kind: model.KindDestination, Version: "0.4.0"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("syncdeck: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"mode", cfg.Mode,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.SeedIntegrations(context.Background(), defaultCatalog); err != nil {
		log.Fatalf("failed to seed integration catalog: %v", err)
	}

	local := runner.NewLocalFactory(cfg.RunnerBaseDir, cfg.RunnerBinary, logger)
	remote := runner.NewRemoteFactory(cfg.RemoteRunnerURL)
	res := runner.NewResolver(runner.Config{
		Mode:          cfg.Mode,
		PollInterval:  time.Duration(cfg.RunnerPollInterval),
		LocalTimeout:  time.Duration(cfg.RunnerLocalTimeout),
		RemoteTimeout: time.Duration(cfg.RunnerRemoteTimeout),
	}, local, remote, logger)

	var files *filestore.Client
	if cfg.FileStoreURL != "" {
		files = filestore.NewClient(cfg.FileStoreURL)
	} else {
		logger.Warn("no file store configured, sync artifacts will not be uploaded")
	}

	eng := engine.NewEngine(db, res, files, logger)

	srv := api.NewServer(cfg.ListenAddr, db, eng, res, files, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
