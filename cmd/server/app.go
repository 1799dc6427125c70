// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/worldmap/internal/api"
	"github.com/tomtom215/worldmap/internal/auth"
	"github.com/tomtom215/worldmap/internal/cluster"
	"github.com/tomtom215/worldmap/internal/config"
	"github.com/tomtom215/worldmap/internal/gateway"
	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/store"
	"github.com/tomtom215/worldmap/internal/supervisor"
	"github.com/tomtom215/worldmap/internal/supervisor/services"
	"github.com/tomtom215/worldmap/internal/uploads"
	"github.com/tomtom215/worldmap/internal/upstream"
	"github.com/tomtom215/worldmap/internal/websocket"
)

// gcInterval is how often badger's value log is compacted.
const gcInterval = 10 * time.Minute

// app holds every long-lived component. It is built once by newApp and
// torn down by close.
type app struct {
	cfg     *config.Config
	db      *store.DB
	hub     *websocket.Hub
	handler http.Handler
	server  *http.Server
	tree    *supervisor.SupervisorTree
}

func newApp(cfg *config.Config) (a *app, err error) {
	db, err := store.Open(store.Options{Path: cfg.Database.Path, InMemory: cfg.Database.InMemory})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	photos, err := uploads.New(cfg.Uploads.Dir, cfg.Uploads.URLPrefix, cfg.Uploads.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("uploads: %w", err)
	}

	hub := websocket.NewHub(websocket.Options{
		WriteWait:      cfg.Realtime.WriteWait,
		PongWait:       cfg.Realtime.PongWait,
		PingPeriod:     cfg.Realtime.PingPeriod,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		SendBuffer:     cfg.Realtime.SendBuffer,
		BroadcastQueue: cfg.Realtime.BroadcastQueue,
	})

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	authService, err := auth.NewService(store.NewUserStore(db), jwtManager)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	breakers := upstream.DefaultBreakerSettings()
	handler := api.NewHandler(api.Dependencies{
		Config:   cfg,
		Gateway:  gateway.New(store.NewMarkerStore(db), photos, hub),
		Hub:      hub,
		Auth:     authService,
		Clusters: cluster.NewMemo(cluster.ParamsFromConfig(cfg.Cluster), cfg.Cluster.MemoSize),
		Uploads:  photos,
		Geocoder: upstream.NewGeocoder(cfg.Geocoding, breakers),
		Routes:   upstream.NewRouter(cfg.Routing, cfg.Geocoding.UserAgent, breakers),
		Store:    db,
	})
	router := api.NewRouter(handler, api.ChiMiddlewareConfigFromSecurity(cfg.Security)).SetupChi()

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
		// No WriteTimeout: it would cut long-lived websocket connections.
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	tree.AddDataService(store.NewGCService(db, gcInterval))
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout,
		services.WithBeforeShutdown(func() {
			n := hub.Drain()
			logging.Info().Int("clients", n).Msg("Drained websocket clients")
		})))

	return &app{
		cfg:     cfg,
		db:      db,
		hub:     hub,
		handler: router,
		server:  server,
		tree:    tree,
	}, nil
}

// run blocks until ctx is cancelled or the tree terminates.
func (a *app) run(ctx context.Context) error {
	logging.Info().
		Str("addr", a.server.Addr).
		Str("environment", a.cfg.Server.Environment).
		Msg("Starting supervisor tree")

	err := a.tree.Serve(ctx)

	unstopped, _ := a.tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// close releases the store. The hub and HTTP server stop with the tree.
func (a *app) close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
