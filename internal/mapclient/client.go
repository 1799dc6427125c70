// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

// Package mapclient is the map-side half of WorldMap: it keeps a local
// replica in sync with a server (bulk fetch plus websocket change feed),
// re-clusters it for the current view off the event path, and manages the
// route overlay.
package mapclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/worldmap/internal/models"
	"github.com/tomtom215/worldmap/internal/replica"
	"github.com/tomtom215/worldmap/internal/upstream"
)

// Options configures a Client. Zero durations take the defaults shown.
type Options struct {
	BaseURL          string
	Token            string       // optional bearer token
	HTTPClient       *http.Client // default: 15s timeout
	HandshakeTimeout time.Duration
	ReconnectInitial time.Duration // 1s
	ReconnectMax     time.Duration // 32s
	PingInterval     time.Duration // 30s
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// Client talks to one WorldMap server and feeds a replica.
type Client struct {
	base    *url.URL
	opts    Options
	http    *http.Client
	dialer  *websocket.Dialer
	replica *replica.Replica

	connected atomic.Bool
	sessions  atomic.Uint64
	stale     atomic.Uint64
}

// New creates a client for opts.BaseURL that writes into r.
func New(opts Options, r *replica.Replica) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url scheme must be http or https, got %q", base.Scheme)
	}
	if r == nil {
		return nil, fmt.Errorf("replica is required")
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectInitial {
		opts.ReconnectMax = 32 * opts.ReconnectInitial
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		base:    base,
		opts:    opts,
		http:    httpClient,
		dialer:  &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		replica: r,
	}, nil
}

// Replica returns the replica the client writes into.
func (c *Client) Replica() *replica.Replica {
	return c.replica
}

// Connected reports whether a live session is currently applying events.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Sessions counts sessions that reached the bootstrapped state.
func (c *Client) Sessions() uint64 {
	return c.sessions.Load()
}

// StaleEvents counts events skipped because the replica held a newer version.
func (c *Client) StaleEvents() uint64 {
	return c.stale.Load()
}

// FetchMarkers returns every marker, newest first.
func (c *Client) FetchMarkers(ctx context.Context) ([]models.Marker, error) {
	var markers []models.Marker
	if err := c.getJSON(ctx, "/markers", nil, &markers); err != nil {
		return nil, err
	}
	return markers, nil
}

// SearchPlaces proxies a geocoding search through the server.
func (c *Client) SearchPlaces(ctx context.Context, q string) ([]upstream.Place, error) {
	var places []upstream.Place
	if err := c.getJSON(ctx, "/geocode/search", url.Values{"q": {q}}, &places); err != nil {
		return nil, err
	}
	return places, nil
}

// FetchRoute asks the server for driving routes. An empty slice means no route.
func (c *Client) FetchRoute(ctx context.Context, from, to models.Position) ([]upstream.Route, error) {
	q := url.Values{
		"from": {formatLngLat(from)},
		"to":   {formatLngLat(to)},
	}
	var routes []upstream.Route
	if err := c.getJSON(ctx, "/route", q, &routes); err != nil {
		return nil, err
	}
	return routes, nil
}

func formatLngLat(p models.Position) string {
	return fmt.Sprintf("%g,%g", p.Lng, p.Lat)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) websocketURL() string {
	u := *c.base
	u.Path = c.base.Path + "/ws"
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	if c.opts.Token != "" {
		h.Set("Authorization", "Bearer "+c.opts.Token)
	}
	return h
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header = c.authHeader()
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, 32<<20)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeStatusError(resp.StatusCode, body)
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func decodeStatusError(status int, body io.Reader) error {
	var envelope struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	se := &StatusError{StatusCode: status}
	if err := json.NewDecoder(body).Decode(&envelope); err == nil && envelope.Error != nil {
		se.Code = envelope.Error.Code
		se.Message = envelope.Error.Message
	}
	return se
}
