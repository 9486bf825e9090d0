package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/johnrirwin/agenda/internal/app"
	"github.com/johnrirwin/agenda/internal/config"
	"github.com/johnrirwin/agenda/internal/logging"
)

func main() {
	cfg := config.Load()

	application, err := app.New(cfg)
	if err != nil {
		logging.New(logging.LevelError).Error("Failed to initialize", logging.WithField("error", err.Error()))
		os.Exit(1)
	}
	logger := application.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() {
		runErr <- application.Run(ctx)
	}()

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("Shutting down...")
		cancel()
	case err := <-runErr:
		if err != nil {
			logger.Error("Server error", logging.WithField("error", err.Error()))
			exitCode = 1
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer done()
	application.Shutdown(shutdownCtx)

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
