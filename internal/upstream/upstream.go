// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

// Package upstream talks to the third-party geocoding (Nominatim) and routing
// (OSRM) services. Each client is rate limited and sits behind a circuit
// breaker. Every failure is returned as an *Error matching models.ErrUpstream
// so callers can show a neutral notice instead of failing hard.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/metrics"
	"github.com/tomtom215/worldmap/internal/models"
)

// maxBodyBytes caps upstream response bodies.
const maxBodyBytes = 4 << 20

// Error is an upstream failure.
type Error struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every *Error match models.ErrUpstream.
func (e *Error) Is(target error) bool {
	return target == models.ErrUpstream
}

// BreakerSettings tunes the circuit breaker of a client.
type BreakerSettings struct {
	// ConsecutiveFailures opens the circuit.
	ConsecutiveFailures uint32

	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings opens after 5 straight failures for 30 seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// client is the shared HTTP plumbing of the geocoder and router.
type client struct {
	service   string
	http      *http.Client
	limiter   *rate.Limiter
	cb        *gobreaker.CircuitBreaker[[]byte]
	userAgent string

	// decodeStatus lists non-200 statuses whose body is still decoded.
	decodeStatus map[int]bool
}

func newClient(service string, timeout time.Duration, perSec float64, userAgent string, bs BreakerSettings) *client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Limit(perSec)
	if perSec <= 0 {
		limit = rate.Inf
	}
	if bs.ConsecutiveFailures == 0 {
		bs = DefaultBreakerSettings()
	}

	metrics.CircuitBreakerState.WithLabelValues(service).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.ConsecutiveFailures
		},
		// A caller giving up is not the upstream's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &client{
		service:   service,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, 1),
		cb:        cb,
		userAgent: userAgent,
	}
}

// getJSON performs a rate-limited, breaker-guarded GET and decodes the body
// into out.
func (c *client) getJSON(ctx context.Context, url string, header http.Header, out interface{}) error {
	start := time.Now()
	body, err := c.cb.Execute(func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.fetch(ctx, url, header)
	})
	metrics.RecordUpstream(c.service, time.Since(start), err)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(c.service, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(c.service, "failure").Inc()
		}
		var ue *Error
		if errors.As(err, &ue) {
			return ue
		}
		return &Error{Service: c.service, Err: err}
	}
	metrics.CircuitBreakerRequests.WithLabelValues(c.service, "success").Inc()

	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Service: c.service, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *client) fetch(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && !c.decodeStatus[resp.StatusCode] {
		return nil, &Error{Service: c.service, StatusCode: resp.StatusCode, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return body, nil
}

func (c *client) state() string {
	return stateToString(c.cb.State())
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
