// main.go
package main

import (
	"fmt"
	"os"

	"gameboost/internal/config"
	"gameboost/internal/logger"
)

var (
	version = "0.1.0"
)

func main() {
	cfg, configPath, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg == nil {
		return // -generate-config
	}

	if err := logger.ConfigureLogging(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure loggers: %v\n", err)
		os.Exit(1)
	}

	app, err := NewGameBoost(cfg, configPath, newHost())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start GameBoost: %v\n", err)
		_ = logger.Close()
		os.Exit(1)
	}
	runErr := app.Run()
	_ = logger.Close()
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "GameBoost failed: %v\n", runErr)
		os.Exit(1)
	}
}
