// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package config

import (
	"fmt"
	"net/url"

	"github.com/tomtom215/worldmap/internal/logging"
)

const minJWTSecretLength = 32

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateUploads,
		c.validateRealtime,
		c.validateSecurity,
		c.validateUpstreams,
		c.validateCluster,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if !c.Database.InMemory && c.Database.Path == "" {
		return fmt.Errorf("DB_PATH is required unless DB_IN_MEMORY=true")
	}
	return nil
}

func (c *Config) validateUploads() error {
	if c.Uploads.Dir == "" {
		return fmt.Errorf("UPLOAD_DIR is required")
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	return nil
}

func (c *Config) validateRealtime() error {
	r := c.Realtime
	if r.PongWait <= 0 || r.PingPeriod <= 0 || r.WriteWait <= 0 {
		return fmt.Errorf("websocket timings must be positive")
	}
	// A ping must go out before the peer's read deadline expires.
	if r.PingPeriod >= r.PongWait {
		return fmt.Errorf("WS_PING_PERIOD (%s) must be shorter than WS_PONG_WAIT (%s)", r.PingPeriod, r.PongWait)
	}
	if r.SendBuffer < 1 || r.BroadcastQueue < 1 {
		return fmt.Errorf("websocket buffers must hold at least one message")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if len(c.Security.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if c.Security.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if !c.Security.RateLimitDisabled && (c.Security.RateLimitReqs < 1 || c.Security.RateLimitWindow <= 0) {
		return fmt.Errorf("rate limit requires positive RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW")
	}
	if c.IsProduction() {
		for _, o := range c.Security.CORSOrigins {
			if o == "*" {
				return fmt.Errorf("CORS_ORIGINS must not contain '*' in production")
			}
		}
	}
	return nil
}

func (c *Config) validateUpstreams() error {
	if err := validateHTTPURL(c.Geocoding.BaseURL, "NOMINATIM_URL"); err != nil {
		return err
	}
	if err := validateHTTPURL(c.Routing.BaseURL, "OSRM_URL"); err != nil {
		return err
	}
	if c.Geocoding.Limit < 1 {
		return fmt.Errorf("geocoding limit must be positive")
	}
	if c.Geocoding.RatePerSec <= 0 || c.Routing.RatePerSec <= 0 {
		return fmt.Errorf("upstream rates must be positive")
	}
	return nil
}

func (c *Config) validateCluster() error {
	cl := c.Cluster
	if cl.RadiusPx <= 0 || cl.TileSize <= 0 || cl.HeatRadiusPx <= 0 {
		return fmt.Errorf("cluster radius, tile size and heatmap radius must be positive")
	}
	if cl.MaxZoom < 0 || cl.MaxZoom > 24 {
		return fmt.Errorf("CLUSTER_MAX_ZOOM must be between 0 and 24, got %d", cl.MaxZoom)
	}
	if cl.MemoSize < 1 {
		return fmt.Errorf("CLUSTER_MEMO_SIZE must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL requires an http(s) scheme and a host. Paths are allowed so
// self-hosted instances behind a prefix work.
func validateHTTPURL(rawURL, fieldName string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	return nil
}
