// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/worldmap/config.yaml",
	"/etc/worldmap/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Path: "data/worldmap",
		},
		Uploads: UploadsConfig{
			Dir:       "uploads",
			URLPrefix: "/uploads",
			MaxBytes:  10 << 20,
		},
		Realtime: RealtimeConfig{
			PongWait:       60 * time.Second,
			PingPeriod:     54 * time.Second,
			WriteWait:      10 * time.Second,
			MaxMessageSize: 512 * 1024,
			SendBuffer:     256,
			BroadcastQueue: 256,
		},
		Security: SecurityConfig{
			TokenTTL:        7 * 24 * time.Hour,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Geocoding: GeocodingConfig{
			BaseURL:    "https://nominatim.openstreetmap.org",
			UserAgent:  "worldmap/1.0",
			Language:   "en",
			Limit:      5,
			Timeout:    10 * time.Second,
			RatePerSec: 1,
			CacheTTL:   10 * time.Minute,
		},
		Routing: RoutingConfig{
			BaseURL:    "https://router.project-osrm.org",
			Profile:    "driving",
			Timeout:    10 * time.Second,
			RatePerSec: 5,
		},
		Cluster: ClusterConfig{
			RadiusPx:     50,
			TileSize:     512,
			MaxZoom:      14,
			HeatRadiusPx: 30,
			MemoSize:     128,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration in three layers:
//  1. built-in defaults
//  2. optional YAML file
//  3. mapped environment variables
func LoadWithKoanf() (*Config, error) {
	return loadFrom(findConfigFile())
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if _, err := cfg.ensureJWTSecret(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths arrive from env as comma-separated strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps flat environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"http_port":            "server.port",
	"http_host":            "server.host",
	"http_timeout":         "server.timeout",
	"shutdown_timeout":     "server.shutdown_timeout",
	"environment":          "server.environment",
	"db_path":              "database.path",
	"db_in_memory":         "database.in_memory",
	"upload_dir":           "uploads.dir",
	"upload_max_bytes":     "uploads.max_bytes",
	"ws_pong_wait":         "realtime.pong_wait",
	"ws_ping_period":       "realtime.ping_period",
	"ws_write_wait":        "realtime.write_wait",
	"ws_max_message_size":  "realtime.max_message_size",
	"ws_send_buffer":       "realtime.send_buffer",
	"ws_broadcast_queue":   "realtime.broadcast_queue",
	"jwt_secret":           "security.jwt_secret",
	"jwt_ttl":              "security.token_ttl",
	"cors_origins":         "security.cors_origins",
	"rate_limit_requests":  "security.rate_limit_reqs",
	"rate_limit_window":    "security.rate_limit_window",
	"disable_rate_limit":   "security.rate_limit_disabled",
	"nominatim_url":        "geocoding.base_url",
	"nominatim_user_agent": "geocoding.user_agent",
	"nominatim_language":   "geocoding.language",
	"nominatim_rate":       "geocoding.rate_per_sec",
	"geocode_cache_ttl":    "geocoding.cache_ttl",
	"osrm_url":             "routing.base_url",
	"osrm_profile":         "routing.profile",
	"osrm_rate":            "routing.rate_per_sec",
	"cluster_radius":       "cluster.radius_px",
	"cluster_tile_size":    "cluster.tile_size",
	"cluster_max_zoom":     "cluster.max_zoom",
	"heatmap_radius":       "cluster.heat_radius_px",
	"cluster_memo_size":    "cluster.memo_size",
	"log_level":            "logging.level",
	"log_format":           "logging.format",
	"log_caller":           "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
