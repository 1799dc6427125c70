// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

// Package config loads WorldMap configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Uploads   UploadsConfig   `koanf:"uploads"`
	Realtime  RealtimeConfig  `koanf:"realtime"`
	Security  SecurityConfig  `koanf:"security"`
	Geocoding GeocodingConfig `koanf:"geocoding"`
	Routing   RoutingConfig   `koanf:"routing"`
	Cluster   ClusterConfig   `koanf:"cluster"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development or production
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig controls the marker/user store.
type DatabaseConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// UploadsConfig controls photo storage.
type UploadsConfig struct {
	Dir       string `koanf:"dir"`
	URLPrefix string `koanf:"url_prefix"`
	MaxBytes  int64  `koanf:"max_bytes"`
}

// RealtimeConfig controls the websocket hub.
type RealtimeConfig struct {
	PongWait       time.Duration `koanf:"pong_wait"`
	PingPeriod     time.Duration `koanf:"ping_period"`
	WriteWait      time.Duration `koanf:"write_wait"`
	MaxMessageSize int64         `koanf:"max_message_size"`
	SendBuffer     int           `koanf:"send_buffer"`
	BroadcastQueue int           `koanf:"broadcast_queue"`
}

// SecurityConfig controls auth tokens, CORS and rate limiting.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	TokenTTL          time.Duration `koanf:"token_ttl"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// GeocodingConfig points at a Nominatim instance.
type GeocodingConfig struct {
	BaseURL    string        `koanf:"base_url"`
	UserAgent  string        `koanf:"user_agent"`
	Language   string        `koanf:"language"`
	Limit      int           `koanf:"limit"`
	Timeout    time.Duration `koanf:"timeout"`
	RatePerSec float64       `koanf:"rate_per_sec"`
	CacheTTL   time.Duration `koanf:"cache_ttl"`
}

// RoutingConfig points at an OSRM instance.
type RoutingConfig struct {
	BaseURL    string        `koanf:"base_url"`
	Profile    string        `koanf:"profile"`
	Timeout    time.Duration `koanf:"timeout"`
	RatePerSec float64       `koanf:"rate_per_sec"`
}

// ClusterConfig holds the grid clustering parameters.
type ClusterConfig struct {
	RadiusPx     float64 `koanf:"radius_px"`
	TileSize     float64 `koanf:"tile_size"`
	MaxZoom      int     `koanf:"max_zoom"`
	HeatRadiusPx float64 `koanf:"heat_radius_px"`
	MemoSize     int     `koanf:"memo_size"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether production checks apply.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// ensureJWTSecret fills an empty secret with random bytes outside production.
// Tokens signed with a generated secret do not survive a restart.
func (c *Config) ensureJWTSecret() (generated bool, err error) {
	if c.Security.JWTSecret != "" || c.IsProduction() {
		return false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	c.Security.JWTSecret = hex.EncodeToString(buf)
	return true, nil
}

// Load is shorthand for LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
