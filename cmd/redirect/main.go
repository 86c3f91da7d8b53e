package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"shortlinks/pkg/app"
	"shortlinks/pkg/config"
	"shortlinks/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config: ", err)
	}
	logger := logging.NewLogger(logging.LogLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	logger.Info(ctx, "starting redirect server", "storage", cfg.Storage.Driver)
	if err := a.Serve(ctx, cfg.Redirect.Addr, a.Router(true)); err != nil {
		logger.Error(ctx, "server stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
}
