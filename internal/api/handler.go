// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

// Package api serves the WorldMap HTTP and websocket interface on a chi
// router.
package api

import (
	"context"
	"time"

	"github.com/tomtom215/worldmap/internal/auth"
	"github.com/tomtom215/worldmap/internal/cluster"
	"github.com/tomtom215/worldmap/internal/config"
	"github.com/tomtom215/worldmap/internal/gateway"
	"github.com/tomtom215/worldmap/internal/models"
	"github.com/tomtom215/worldmap/internal/uploads"
	"github.com/tomtom215/worldmap/internal/upstream"
	"github.com/tomtom215/worldmap/internal/websocket"
)

// Geocoder searches places by name.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]upstream.Place, error)
}

// RouteFinder computes routes between two points.
type RouteFinder interface {
	Route(ctx context.Context, from, to models.Position) ([]upstream.Route, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the handlers call. Geocoder and Routes
// may be nil, in which case their endpoints answer 503.
type Dependencies struct {
	Config   *config.Config
	Gateway  *gateway.Gateway
	Hub      *websocket.Hub
	Auth     *auth.Service
	Clusters *cluster.Memo
	Uploads  *uploads.Store
	Geocoder Geocoder
	Routes   RouteFinder
	Store    Pinger
}

// Handler holds the HTTP handlers.
type Handler struct {
	config    *config.Config
	gateway   *gateway.Gateway
	wsHub     *websocket.Hub
	auth      *auth.Service
	clusters  *cluster.Memo
	uploads   *uploads.Store
	geocoder  Geocoder
	routes    RouteFinder
	store     Pinger
	startTime time.Time
}

// NewHandler creates the handler set.
func NewHandler(deps Dependencies) *Handler {
	clusters := deps.Clusters
	if clusters == nil {
		clusters = cluster.NewMemo(cluster.DefaultParams(), 128)
	}
	return &Handler{
		config:    deps.Config,
		gateway:   deps.Gateway,
		wsHub:     deps.Hub,
		auth:      deps.Auth,
		clusters:  clusters,
		uploads:   deps.Uploads,
		geocoder:  deps.Geocoder,
		routes:    deps.Routes,
		store:     deps.Store,
		startTime: time.Now(),
	}
}
