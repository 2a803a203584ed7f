package main

import (
	"context"

	"github.com/joho/godotenv"

	"parlor/internal/app"
	"parlor/pkg/config"
	"parlor/pkg/logger"
	"parlor/pkg/shutdown"
)

// set via ldflags during release builds
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseFlags()
	eff, err := config.LoadEffective(flags)
	if err != nil {
		shutdown.Fatal("failed to load config", err)
	}

	logger.Init(eff.Config.Logging.Level)

	a, err := app.New(eff, version)
	if err != nil {
		shutdown.Fatal("failed to initialize", err)
	}

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Fatal("server exited", err)
	}
	logger.Info("server_stopped")
}
