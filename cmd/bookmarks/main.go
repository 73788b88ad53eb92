package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/JakeFAU/bookmarks/internal/config"
	"github.com/JakeFAU/bookmarks/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bookmarks: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	if err := app.Run(ctx); err != nil {
		app.Logger().Error("server exited with error", zap.Error(err))
		return err
	}
	return nil
}
