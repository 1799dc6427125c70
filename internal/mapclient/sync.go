// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package mapclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/models"
)

// eventBuffer holds events read while the bulk fetch is in flight.
const eventBuffer = 256

// Serve keeps the replica synchronised until ctx is cancelled. It implements
// suture.Service.
//
// Each session dials the websocket first and only then fetches the marker
// list, so no change published between the two is missed. Events that
// arrive during the fetch are applied after Bootstrap. When a session ends
// the client waits an exponential backoff and starts over with a fresh
// bootstrap.
func (c *Client) Serve(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectInitial
	b.MaxInterval = c.opts.ReconnectMax

	for {
		established, err := c.session(ctx)
		c.connected.Store(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			b.Reset()
		}

		delay := b.NextBackOff()
		logging.Warn().
			Err(err).
			Dur("retry_in", delay).
			Str("server", c.base.Host).
			Msg("Map client disconnected, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// String names the service in supervisor logs.
func (c *Client) String() string {
	return "mapclient"
}

// session runs one connection. established reports whether Bootstrap ran.
func (c *Client) session(ctx context.Context) (established bool, err error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.websocketURL(), c.authHeader())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return false, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	events := make(chan models.ChangeEvent, eventBuffer)
	readErr := make(chan error, 1)
	go c.readLoop(conn, events, readErr, done)

	markers, err := c.FetchMarkers(ctx)
	if err != nil {
		return false, fmt.Errorf("bootstrap: %w", err)
	}
	c.replica.Bootstrap(markers)
	c.connected.Store(true)
	c.sessions.Add(1)
	logging.Info().
		Int("markers", len(markers)).
		Str("server", c.base.Host).
		Msg("Map client synchronised")

	ping := time.NewTicker(c.opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return true, ctx.Err()

		case e := <-events:
			c.apply(e)

		case err := <-readErr:
			return true, err

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
				return true, fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

// readLoop decodes server messages until the connection fails or done closes.
func (c *Client) readLoop(conn *websocket.Conn, events chan<- models.ChangeEvent, readErr chan<- error, done <-chan struct{}) {
	// Server pings and our own ping replies both count as traffic.
	wait := 2*c.opts.PingInterval + c.opts.HandshakeTimeout
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- fmt.Errorf("websocket read: %w", err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))

		var e models.ChangeEvent
		if err := json.Unmarshal(data, &e); err != nil {
			logging.Debug().Err(err).Msg("Ignoring undecodable websocket message")
			continue
		}
		if !e.Kind.Valid() {
			// pong and any future message types
			continue
		}

		select {
		case events <- e:
		case <-done:
			return
		}
	}
}

// apply upserts e unless the replica already holds a newer version, which
// happens for events buffered before a bootstrap that already included them.
func (c *Client) apply(e models.ChangeEvent) {
	if cur, ok := c.replica.Get(e.Marker.ID); ok && cur.Version > e.Marker.Version {
		c.stale.Add(1)
		logging.Debug().
			Uint64("marker_id", e.Marker.ID).
			Uint64("held", cur.Version).
			Uint64("event", e.Marker.Version).
			Msg("Skipping stale change event")
		return
	}
	c.replica.ApplyEvent(e)
}
