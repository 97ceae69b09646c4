// Package main is the entry point for the roomtone headless renderer.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/roomtone/internal/config"
	"github.com/Faultbox/roomtone/internal/logger"
	"github.com/Faultbox/roomtone/internal/sim"
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

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("=== roomtone ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	if cfg.Render.Scene == "" {
		logger.Error("no scene given, use -scene or render.scene")
		os.Exit(2)
	}

	s, err := sim.New(cfg)
	if err != nil {
		logger.Error("failed to create simulation", zap.Error(err))
		os.Exit(1)
	}
	defer s.Close()

	if err := s.Run(); err != nil {
		logger.Error("simulation error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("done")
}
