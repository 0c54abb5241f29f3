package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"papertrader/internal/cli"
	"papertrader/internal/config"
	"papertrader/internal/logging"
)

func main() {
	configDir := os.Getenv("PAPERTRADER_CONFIG_DIR")
	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "papertrader: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File
	logger := logging.NewLoggerWithConfig(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "papertrader: %v\n", err)
		os.Exit(1)
	}
}
