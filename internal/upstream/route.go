// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/worldmap/internal/config"
	"github.com/tomtom215/worldmap/internal/models"
)

// Geometry is a GeoJSON geometry. Routes are always LineStrings whose
// coordinates are [lng, lat] pairs.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Route is one driving route.
type Route struct {
	Geometry Geometry `json:"geometry"`
	Distance float64  `json:"distance"` // meters
	Duration float64  `json:"duration"` // seconds
}

type osrmResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Routes  []Route `json:"routes"`
}

// Router requests routes from OSRM.
type Router struct {
	client  *client
	baseURL string
	profile string
}

// NewRouter creates a router from config.
func NewRouter(cfg config.RoutingConfig, userAgent string, bs BreakerSettings) *Router {
	profile := cfg.Profile
	if profile == "" {
		profile = "driving"
	}
	c := newClient("osrm", cfg.Timeout, cfg.RatePerSec, userAgent, bs)
	// OSRM answers 400 with a code such as NoRoute or InvalidQuery.
	c.decodeStatus = map[int]bool{http.StatusBadRequest: true}
	return &Router{
		client:  c,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		profile: profile,
	}
}

// Route returns the routes between two points with full GeoJSON geometry.
// No route returns an empty slice.
func (r *Router) Route(ctx context.Context, from, to models.Position) ([]Route, error) {
	if !from.Valid() {
		return nil, models.NewValidationError("from", "position", "from must be a valid lng,lat pair")
	}
	if !to.Valid() {
		return nil, models.NewValidationError("to", "position", "to must be a valid lng,lat pair")
	}

	url := fmt.Sprintf("%s/route/v1/%s/%s;%s?overview=full&geometries=geojson",
		r.baseURL, r.profile, lngLat(from), lngLat(to))

	var resp osrmResponse
	if err := r.client.getJSON(ctx, url, nil, &resp); err != nil {
		return nil, err
	}

	switch resp.Code {
	case "Ok":
		if resp.Routes == nil {
			return []Route{}, nil
		}
		return resp.Routes, nil
	case "NoRoute", "NoSegment":
		return []Route{}, nil
	case "InvalidQuery", "InvalidValue", "InvalidOptions":
		return nil, models.NewValidationError("route", "invalid", resp.Message)
	default:
		return nil, &Error{Service: "osrm", Err: fmt.Errorf("code %s: %s", resp.Code, resp.Message)}
	}
}

// BreakerState reports the circuit state for health output.
func (r *Router) BreakerState() string {
	return r.client.state()
}

func lngLat(p models.Position) string {
	return strconv.FormatFloat(p.Lng, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat, 'f', -1, 64)
}

// ParseLngLat parses a "lng,lat" query value.
func ParseLngLat(s string) (models.Position, error) {
	lngStr, latStr, ok := strings.Cut(s, ",")
	if !ok {
		return models.Position{}, fmt.Errorf("want lng,lat, got %q", s)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return models.Position{}, fmt.Errorf("invalid longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return models.Position{}, fmt.Errorf("invalid latitude: %w", err)
	}
	p := models.Position{Lat: lat, Lng: lng}
	if !p.Valid() {
		return models.Position{}, fmt.Errorf("coordinate %q out of range", s)
	}
	return p, nil
}
