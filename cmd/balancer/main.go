// ====================================
// File: cmd/balancer/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/rpc-balancer/internal/balancer"
	"github.com/rovshanmuradov/rpc-balancer/internal/config"
	"github.com/rovshanmuradov/rpc-balancer/internal/utils/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// .env необязателен
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Starting " + balancer.Version)

	runner, err := balancer.NewRunner(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize balancer", zap.Error(err))
	}

	ctx, cancel := runner.NotifyContext(context.Background())
	runErr := runner.Run(ctx)
	cancel()

	if err := runner.Shutdown(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "balancer stopped: %v\n", runErr)
		os.Exit(1)
	}
}
