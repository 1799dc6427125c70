// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

// Command mapclient follows a WorldMap server headlessly: it mirrors the
// marker set, logs a cluster frame whenever it changes, and optionally shows
// a driving route overlay.
//
//	MAPCLIENT_SERVER_URL=http://localhost:3000 \
//	MAPCLIENT_ZOOM=5 \
//	MAPCLIENT_ROUTE_FROM=2.35,48.85 MAPCLIENT_ROUTE_TO=-0.12,51.5 \
//	mapclient [config.yaml]
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/worldmap/internal/cluster"
	"github.com/tomtom215/worldmap/internal/config"
	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/mapclient"
	"github.com/tomtom215/worldmap/internal/models"
	"github.com/tomtom215/worldmap/internal/replica"
	"github.com/tomtom215/worldmap/internal/supervisor"
	"github.com/tomtom215/worldmap/internal/upstream"
)

func main() {
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.LoadClient(path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	rep := replica.New()
	client, err := mapclient.New(mapclient.Options{
		BaseURL:          cfg.ServerURL,
		Token:            cfg.Token,
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReconnectInitial: cfg.ReconnectInitial,
		ReconnectMax:     cfg.ReconnectMax,
		PingInterval:     cfg.PingInterval,
	}, rep)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create map client")
	}

	memo := cluster.NewMemo(cluster.ParamsFromConfig(cfg.Cluster), cfg.Cluster.MemoSize)
	renderer := mapclient.NewRenderer(rep, memo, cfg.Debounce, logFrame)
	renderer.SetView(models.Viewport{West: cfg.West, South: cfg.South, East: cfg.East, North: cfg.North}, cfg.Zoom)

	tree, err := supervisor.NewSupervisorTree(nil, supervisor.TreeConfig{Name: "mapclient"})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddMessagingService(client)
	tree.AddMessagingService(renderer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RouteFrom != "" {
		go showRoute(ctx, client, cfg.RouteFrom, cfg.RouteTo)
	}

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Map client stopped with error")
		os.Exit(1)
	}
}

func logFrame(v mapclient.View) {
	leaves := 0
	for _, c := range v.Clusters {
		if c.IsLeaf() {
			leaves++
		}
	}
	logging.Info().
		Int("zoom", v.Zoom).
		Int("markers", v.Markers).
		Int("clusters", len(v.Clusters)-leaves).
		Int("leaves", leaves).
		Msg("Map frame")
}

// showRoute fetches one route and draws it on an in-memory surface.
func showRoute(ctx context.Context, client *mapclient.Client, fromStr, toStr string) {
	from, err := upstream.ParseLngLat(fromStr)
	if err != nil {
		logging.Error().Err(err).Msg("Invalid MAPCLIENT_ROUTE_FROM")
		return
	}
	to, err := upstream.ParseLngLat(toStr)
	if err != nil {
		logging.Error().Err(err).Msg("Invalid MAPCLIENT_ROUTE_TO")
		return
	}

	routes, err := client.FetchRoute(ctx, from, to)
	if err != nil {
		// Routing is best effort; the marker map keeps running.
		logging.Warn().Err(err).Msg("Route unavailable")
		return
	}
	if len(routes) == 0 {
		logging.Info().Msg("No route between the requested points")
		return
	}

	surface := mapclient.NewLayerSet()
	if err := mapclient.NewOverlays(surface).ShowRoute(routes[0].Geometry); err != nil {
		logging.Error().Err(err).Msg("Failed to draw route")
		return
	}
	logging.Info().
		Float64("distance_m", routes[0].Distance).
		Float64("duration_s", routes[0].Duration).
		Strs("layers", surface.Layers()).
		Msg("Route shown")
}
