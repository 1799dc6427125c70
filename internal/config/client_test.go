// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient("")
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}
	if cfg.ServerURL != "http://localhost:3000" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Cluster.MaxZoom != 14 || cfg.Cluster.RadiusPx != 50 {
		t.Errorf("Cluster = %+v", cfg.Cluster)
	}
	if cfg.ReconnectInitial != time.Second || cfg.ReconnectMax != 32*time.Second {
		t.Errorf("reconnect = %v..%v", cfg.ReconnectInitial, cfg.ReconnectMax)
	}
}

func TestLoadClientFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	yaml := "server_url: http://map.internal:8080\nzoom: 6\ndebounce: 50ms\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAPCLIENT_ZOOM", "9")
	t.Setenv("MAPCLIENT_TOKEN", "abc")
	t.Setenv("ZOOM", "1")

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient() error = %v", err)
	}
	if cfg.ServerURL != "http://map.internal:8080" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Zoom != 9 {
		t.Errorf("Zoom = %d, want env override 9", cfg.Zoom)
	}
	if cfg.Debounce != 50*time.Millisecond || cfg.Token != "abc" {
		t.Errorf("Debounce = %v Token = %q", cfg.Debounce, cfg.Token)
	}
}

func TestClientValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClientConfig)
	}{
		{"bad url", func(c *ClientConfig) { c.ServerURL = "ftp://x" }},
		{"reconnect order", func(c *ClientConfig) { c.ReconnectMax = c.ReconnectInitial / 2 }},
		{"zoom", func(c *ClientConfig) { c.Zoom = 30 }},
		{"viewport", func(c *ClientConfig) { c.South, c.North = 10, -10 }},
		{"cluster", func(c *ClientConfig) { c.Cluster.RadiusPx = 0 }},
		{"half route", func(c *ClientConfig) { c.RouteFrom = "2.35,48.85" }},
		{"log level", func(c *ClientConfig) { c.Logging.Level = "loud" }},
	}
	if err := defaultClientConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultClientConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
