// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/worldmap/internal/config"
	"github.com/tomtom215/worldmap/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("db_in_memory", cfg.Database.InMemory).
		Str("uploads", cfg.Uploads.Dir).
		Msg("Configuration loaded")

	a, err := newApp(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := a.run(ctx)
	if err := a.close(); err != nil {
		logging.Error().Err(err).Msg("Error during shutdown")
	}
	if runErr != nil {
		logging.Error().Err(runErr).Msg("Supervisor tree stopped with error")
		os.Exit(1)
	}
	logging.Info().Msg("WorldMap stopped gracefully")
}
