package main

import (
	"context"
	"log"
	"os"

	"syslink-agent/internal/agent"
	"syslink-agent/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("syslink-agent: load config: %v", err)
	}

	logger := agent.BuildLogger(cfg)
	logger.Info("starting syslink agent",
		"version", cfg.AgentVersion,
		"hostname", cfg.Hostname,
		"config_path", cfg.ConfigPath,
		"pid", os.Getpid(),
	)

	a, err := agent.New(cfg, logger)
	if err != nil {
		logger.Error("syslink agent initialization failed", "config_path", cfg.ConfigPath, "error", err)
		os.Exit(1)
	}
	if err := a.Run(context.Background()); err != nil {
		logger.Error("syslink agent stopped with error", "error", err)
		os.Exit(1)
	}
}
