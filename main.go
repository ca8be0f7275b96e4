package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"stresstest-server/confs"
	"stresstest-server/db"
	"stresstest-server/logs"
	"stresstest-server/server"
)

func main() {
	// load config
	cfg, err := confs.LoadConfig()
	if err != nil {
		logs.Logger.Fatalf("Error loading config: %v", err)
	}
	logs.Init(logs.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})

	// connect to the configured database; nil means in-memory
	database, err := db.Connect(cfg.Database)
	if err != nil {
		logs.Logger.Fatalf("Failed to connect to DB: %v", err)
	}

	srv, err := server.NewServer(cfg, database)
	if err != nil {
		logs.Logger.Fatalf("Failed to build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logs.Logger.Fatalf("Server error: %v", err)
	}
}
