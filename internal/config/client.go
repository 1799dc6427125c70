// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/worldmap/internal/logging"
)

// ClientConfig configures cmd/mapclient.
type ClientConfig struct {
	ServerURL        string        `koanf:"server_url"`
	Token            string        `koanf:"token"`
	HTTPTimeout      time.Duration `koanf:"http_timeout"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	ReconnectInitial time.Duration `koanf:"reconnect_initial"`
	ReconnectMax     time.Duration `koanf:"reconnect_max"`
	PingInterval     time.Duration `koanf:"ping_interval"`
	Debounce         time.Duration `koanf:"debounce"`
	Zoom             int           `koanf:"zoom"`
	West             float64       `koanf:"west"`
	South            float64       `koanf:"south"`
	East             float64       `koanf:"east"`
	North            float64       `koanf:"north"`
	RouteFrom        string        `koanf:"route_from"` // "lng,lat"
	RouteTo          string        `koanf:"route_to"`
	Cluster          ClusterConfig `koanf:"cluster"`
	Logging          LoggingConfig `koanf:"logging"`
}

func defaultClientConfig() *ClientConfig {
	server := defaultConfig()
	return &ClientConfig{
		ServerURL:        "http://localhost:3000",
		HTTPTimeout:      15 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		ReconnectInitial: time.Second,
		ReconnectMax:     32 * time.Second,
		PingInterval:     30 * time.Second,
		Debounce:         150 * time.Millisecond,
		Zoom:             2,
		West:             -180,
		South:            -90,
		East:             180,
		North:            90,
		Cluster:          server.Cluster,
		Logging:          LoggingConfig{Level: "info", Format: "console"},
	}
}

// clientEnvMappings are read with the MAPCLIENT_ prefix stripped.
var clientEnvMappings = map[string]string{
	"server_url":        "server_url",
	"token":             "token",
	"http_timeout":      "http_timeout",
	"handshake_timeout": "handshake_timeout",
	"reconnect_initial": "reconnect_initial",
	"reconnect_max":     "reconnect_max",
	"ping_interval":     "ping_interval",
	"debounce":          "debounce",
	"zoom":              "zoom",
	"west":              "west",
	"south":             "south",
	"east":              "east",
	"north":             "north",
	"route_from":        "route_from",
	"route_to":          "route_to",
	"cluster_radius":    "cluster.radius_px",
	"cluster_max_zoom":  "cluster.max_zoom",
	"log_level":         "logging.level",
	"log_format":        "logging.format",
}

// ClientEnvPrefix prefixes every map client environment variable.
const ClientEnvPrefix = "MAPCLIENT_"

func clientEnvTransform(key string) string {
	return clientEnvMappings[strings.ToLower(strings.TrimPrefix(key, ClientEnvPrefix))]
}

// LoadClient loads the map client configuration: defaults, then the YAML
// file at path when non-empty, then MAPCLIENT_* environment variables.
func LoadClient(path string) (*ClientConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultClientConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(ClientEnvPrefix, ".", clientEnvTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &ClientConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the client configuration.
func (c *ClientConfig) Validate() error {
	if err := validateHTTPURL(c.ServerURL, "MAPCLIENT_SERVER_URL"); err != nil {
		return err
	}
	if c.ReconnectInitial <= 0 || c.ReconnectMax < c.ReconnectInitial {
		return fmt.Errorf("reconnect delays must be positive with max >= initial")
	}
	if c.Debounce < 0 {
		return fmt.Errorf("MAPCLIENT_DEBOUNCE must not be negative")
	}
	if c.Zoom < 0 || c.Zoom > 24 {
		return fmt.Errorf("MAPCLIENT_ZOOM must be between 0 and 24, got %d", c.Zoom)
	}
	if c.South < -90 || c.North > 90 || c.South > c.North ||
		c.West < -180 || c.West > 180 || c.East < -180 || c.East > 180 {
		return fmt.Errorf("viewport bounds are out of range")
	}
	if (c.RouteFrom == "") != (c.RouteTo == "") {
		return fmt.Errorf("MAPCLIENT_ROUTE_FROM and MAPCLIENT_ROUTE_TO must be set together")
	}
	if c.Cluster.RadiusPx <= 0 || c.Cluster.TileSize <= 0 || c.Cluster.MemoSize < 1 {
		return fmt.Errorf("cluster radius, tile size and memo size must be positive")
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("MAPCLIENT_LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	return nil
}
