// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package mapclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/worldmap/internal/cluster"
	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/models"
	"github.com/tomtom215/worldmap/internal/replica"
)

// View is one rendered frame: the clusters for a viewport and zoom.
type View struct {
	Zoom       int
	Viewport   models.Viewport
	Clusters   []models.Cluster
	Markers    int // markers held by the replica when the frame was built
	RenderedAt time.Time
}

// Renderer re-clusters the replica whenever it or the view changes. Bursts of
// changes within the debounce window produce a single frame. Clustering runs
// on the renderer's goroutine over a snapshot, never on the event path.
type Renderer struct {
	replica  *replica.Replica
	memo     *cluster.Memo
	debounce time.Duration
	onRender func(View)

	mu       sync.Mutex
	zoom     int
	viewport models.Viewport
	latest   *View

	trigger chan struct{}
	frames  atomic.Uint64
}

// NewRenderer creates a renderer for the whole world at zoom 0. onRender may
// be nil.
func NewRenderer(r *replica.Replica, memo *cluster.Memo, debounce time.Duration, onRender func(View)) *Renderer {
	if memo == nil {
		memo = cluster.NewMemo(cluster.DefaultParams(), 32)
	}
	return &Renderer{
		replica:  r,
		memo:     memo,
		debounce: debounce,
		onRender: onRender,
		viewport: models.WorldViewport,
		trigger:  make(chan struct{}, 1),
	}
}

// SetView changes the viewport and zoom and schedules a frame.
func (r *Renderer) SetView(viewport models.Viewport, zoom int) {
	r.mu.Lock()
	r.viewport = viewport
	r.zoom = zoom
	r.mu.Unlock()
	r.kick()
}

// Latest returns the most recent frame.
func (r *Renderer) Latest() (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return View{}, false
	}
	return *r.latest, true
}

// Frames counts rendered frames.
func (r *Renderer) Frames() uint64 {
	return r.frames.Load()
}

// kick never blocks; a pending trigger already covers this change.
func (r *Renderer) kick() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Serve renders until ctx is cancelled. It implements suture.Service.
func (r *Renderer) Serve(ctx context.Context) error {
	sub := r.replica.Subscribe(func(int) { r.kick() })
	defer sub.Cancel()

	r.kick()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-r.trigger:
			if r.debounce <= 0 {
				r.render()
				continue
			}
			if !pending {
				pending = true
				timer.Reset(r.debounce)
			}

		case <-timer.C:
			pending = false
			r.render()
		}
	}
}

// String names the service in supervisor logs.
func (r *Renderer) String() string {
	return "mapclient-renderer"
}

func (r *Renderer) render() {
	r.mu.Lock()
	viewport, zoom := r.viewport, r.zoom
	r.mu.Unlock()

	markers := r.replica.Snapshot()
	clusters := r.memo.Cluster(markers, viewport, zoom)
	view := View{
		Zoom:       zoom,
		Viewport:   viewport,
		Clusters:   clusters,
		Markers:    len(markers),
		RenderedAt: time.Now(),
	}

	r.mu.Lock()
	r.latest = &view
	r.mu.Unlock()
	r.frames.Add(1)

	logging.Debug().
		Int("zoom", zoom).
		Int("markers", len(markers)).
		Int("clusters", len(clusters)).
		Msg("Rendered map frame")

	if r.onRender != nil {
		r.onRender(view)
	}
}
