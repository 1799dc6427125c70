// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tomtom215/worldmap/internal/config"
	"github.com/tomtom215/worldmap/internal/metrics"
	"github.com/tomtom215/worldmap/internal/models"
)

// Place is one geocoding result.
type Place struct {
	Name        string    `json:"name"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Type        string    `json:"type,omitempty"`
	BoundingBox []float64 `json:"bbox,omitempty"` // south, north, west, east
}

// nominatimPlace is the jsonv2 search shape. Coordinates arrive as strings.
type nominatimPlace struct {
	DisplayName string   `json:"display_name"`
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	Type        string   `json:"type"`
	BoundingBox []string `json:"boundingbox"`
}

// Geocoder searches places on Nominatim.
type Geocoder struct {
	client   *client
	baseURL  string
	language string
	limit    int
	cache    *gocache.Cache
}

// NewGeocoder creates a geocoder from config.
func NewGeocoder(cfg config.GeocodingConfig, bs BreakerSettings) *Geocoder {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 5
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Geocoder{
		client:   newClient("nominatim", cfg.Timeout, cfg.RatePerSec, cfg.UserAgent, bs),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		language: cfg.Language,
		limit:    limit,
		cache:    gocache.New(ttl, 2*ttl),
	}
}

// Search returns up to the configured number of places for query. No match
// returns an empty slice.
func (g *Geocoder) Search(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("q", "required", "q is required")
	}

	key := strings.ToLower(query)
	if cached, ok := g.cache.Get(key); ok {
		metrics.GeocodeCacheHits.Inc()
		return cached.([]Place), nil
	}
	metrics.GeocodeCacheMisses.Inc()

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(g.limit))
	header := http.Header{}
	if g.language != "" {
		params.Set("accept-language", g.language)
		header.Set("Accept-Language", g.language)
	}

	var raw []nominatimPlace
	if err := g.client.getJSON(ctx, g.baseURL+"/search?"+params.Encode(), header, &raw); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lng, errLng := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		p := Place{Name: r.DisplayName, Lat: lat, Lng: lng, Type: r.Type}
		if len(r.BoundingBox) == 4 {
			bbox := make([]float64, 0, 4)
			for _, s := range r.BoundingBox {
				if v, err := strconv.ParseFloat(s, 64); err == nil {
					bbox = append(bbox, v)
				}
			}
			if len(bbox) == 4 {
				p.BoundingBox = bbox
			}
		}
		places = append(places, p)
		if len(places) == g.limit {
			break
		}
	}

	g.cache.SetDefault(key, places)
	return places, nil
}

// BreakerState reports the circuit state for health output.
func (g *Geocoder) BreakerState() string {
	return g.client.state()
}
