// Package main is the entry point for the RenderLab deferred renderer.
package main

import (
	"fmt"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/app"
	"github.com/Faultbox/renderlab/internal/config"
	"github.com/Faultbox/renderlab/internal/logger"
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if config.SaveRequested() {
		if err := cfg.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("config written to", config.ConfigDir())
		return
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== RenderLab ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	a, err := app.New(cfg)
	if err != nil {
		logger.Error("failed to start", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	// Teardown errors are reported along with the render loop's.
	if err := multierr.Combine(a.Run(), a.Close()); err != nil {
		for _, e := range multierr.Errors(err) {
			logger.Error("render loop failed", zap.Error(e))
		}
		logger.Sync()
		os.Exit(1)
	}

	logger.Info("closed normally")
}
