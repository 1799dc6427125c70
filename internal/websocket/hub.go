// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

// Package websocket fans marker change events out to connected viewers.
//
// The Hub is both the connection registry and the change broadcaster. A single
// event loop owns the client set; registration and unregistration are
// processed before pending broadcasts so the set is always current when an
// event is delivered. Publishing never blocks: the inbound queue is bounded
// and a full queue drops the event. Each client has its own bounded send
// buffer and a client whose buffer is full is disconnected.
package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/metrics"
	"github.com/tomtom215/worldmap/internal/models"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Client-originated message types. Server-originated change messages use the
// models.ChangeKind values.
const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// ErrHubStopped is returned by Register once the event loop has exited.
var ErrHubStopped = errors.New("websocket hub stopped")

// Message is the generic websocket envelope.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Options tunes the hub and its clients.
type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int
	BroadcastQueue int
}

// DefaultOptions returns the production heartbeat and buffer settings.
func DefaultOptions() Options {
	return Options{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 512 * 1024,
		SendBuffer:     256,
		BroadcastQueue: 256,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.BroadcastQueue <= 0 {
		o.BroadcastQueue = d.BroadcastQueue
	}
	return o
}

type lifecycleRequest struct {
	client *Client
	done   chan struct{}
}

// Hub maintains the set of active clients and broadcasts change events to
// them.
type Hub struct {
	opts Options

	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan lifecycleRequest
	unregister chan lifecycleRequest
	drain      chan chan int
	stopped    chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex

	dropped atomic.Uint64
	evicted atomic.Uint64
}

// NewHub creates a hub. Call RunWithContext to start its event loop.
func NewHub(opts Options) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		opts:       opts,
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, opts.BroadcastQueue),
		register:   make(chan lifecycleRequest),
		unregister: make(chan lifecycleRequest),
		drain:      make(chan chan int),
		stopped:    make(chan struct{}),
	}
}

// Options returns the effective options.
func (h *Hub) Options() Options {
	return h.opts
}

// Subscription is the handle returned by Register. Cancel is idempotent.
type Subscription struct {
	hub    *Hub
	client *Client
	once   sync.Once
}

// Client returns the registered client.
func (s *Subscription) Client() *Client {
	return s.client
}

// Cancel unregisters the client. After Cancel returns the client receives no
// further events.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.Unregister(s)
	})
}

// Register adds c to the client set. Every event published after Register
// returns is delivered to c until it is unregistered or evicted.
func (h *Hub) Register(c *Client) (*Subscription, error) {
	req := lifecycleRequest{client: c, done: make(chan struct{})}
	select {
	case h.register <- req:
	case <-h.stopped:
		return nil, ErrHubStopped
	}
	<-req.done
	return &Subscription{hub: h, client: c}, nil
}

// Unregister removes the subscription's client and closes its send buffer.
// Unknown, already-removed or evicted clients are ignored.
func (h *Hub) Unregister(sub *Subscription) {
	if sub == nil {
		return
	}
	req := lifecycleRequest{client: sub.client, done: make(chan struct{})}
	select {
	case h.unregister <- req:
		<-req.done
	case <-h.stopped:
	}
}

// Publish queues a change event for delivery to every registered client. It
// never blocks; when the queue is full the event is dropped and counted.
func (h *Hub) Publish(event models.ChangeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Str("event", event.String()).Msg("Failed to encode change event")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
		metrics.BroadcastDropped.Inc()
		logging.Warn().
			Str("event", event.String()).
			Msg("Broadcast queue full, dropping change event")
	}
}

// Drain closes every connected client and returns how many were closed. The
// hub keeps running and accepts new registrations afterwards.
func (h *Hub) Drain() int {
	reply := make(chan int, 1)
	select {
	case h.drain <- reply:
		return <-reply
	case <-h.stopped:
		return 0
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of events dropped because the queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Evicted returns the number of clients disconnected for a full send buffer.
func (h *Hub) Evicted() uint64 {
	return h.evicted.Load()
}

// RunWithContext runs the event loop until ctx is cancelled, then closes all
// clients and returns ctx.Err(). A hub is run once; after it returns,
// Register fails with ErrHubStopped.
//
// Selection priority: shutdown, then lifecycle and drain requests, then
// broadcasts.
func (h *Hub) RunWithContext(ctx context.Context) error {
	defer h.stopOnce.Do(func() { close(h.stopped) })

	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case req := <-h.register:
			h.addClient(req)
			continue
		case req := <-h.unregister:
			h.removeClient(req)
			continue
		case reply := <-h.drain:
			reply <- h.closeAllClients()
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case req := <-h.register:
			h.addClient(req)
		case req := <-h.unregister:
			h.removeClient(req)
		case reply := <-h.drain:
			reply <- h.closeAllClients()
		case data := <-h.broadcast:
			h.broadcastToClients(data)
		}
	}
}

func (h *Hub) addClient(req lifecycleRequest) {
	h.mu.Lock()
	h.clients[req.client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	close(req.done)

	metrics.WSConnections.Set(float64(n))
	logging.Info().
		Uint64("client_id", req.client.id).
		Int("total_clients", n).
		Msg("websocket client connected")
}

func (h *Hub) removeClient(req lifecycleRequest) {
	h.mu.Lock()
	_, ok := h.clients[req.client]
	if ok {
		delete(h.clients, req.client)
		close(req.client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	close(req.done)

	if ok {
		metrics.WSConnections.Set(float64(n))
		logging.Info().
			Uint64("client_id", req.client.id).
			Int("total_clients", n).
			Msg("websocket client disconnected")
	}
}

// sortedClients must be called with h.mu held.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients delivers data to every client in id order. Clients with
// a full send buffer are evicted.
func (h *Hub) broadcastToClients(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var evicted []*Client
	for _, c := range h.sortedClients() {
		select {
		case c.send <- data:
		default:
			evicted = append(evicted, c)
		}
	}

	for _, c := range evicted {
		close(c.send)
		delete(h.clients, c)
		h.evicted.Add(1)
		metrics.ClientsEvicted.Inc()
		logging.Warn().
			Uint64("client_id", c.id).
			Msg("websocket client send buffer full, disconnecting")
	}
	if len(evicted) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
	}
}

func (h *Hub) closeAllClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.sortedClients()
	for _, c := range clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.WSConnections.Set(0)
	return len(clients)
}

func (h *Hub) shutdown(ctx context.Context) {
	n := h.closeAllClients()
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", n).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}
