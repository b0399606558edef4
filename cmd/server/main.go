package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"whitelist/internal/platform/config"
	"whitelist/internal/platform/logger"
)

// main loads configuration and hands the process lifecycle to run. Business
// logic lives in internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logg := logger.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error("whitelist server stopped", "error", err)
		os.Exit(1)
	}
}
