// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package mapclient

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/worldmap/internal/upstream"
)

// Route overlay identifiers.
const (
	RouteSourceID = "route"
	RouteLayerID  = "route"
)

var (
	// ErrNoSuchOverlay is returned when removing a layer or source that is absent.
	ErrNoSuchOverlay = errors.New("overlay does not exist")

	// ErrOverlayExists is returned when adding a layer or source id twice.
	ErrOverlayExists = errors.New("overlay already exists")

	// ErrSourceInUse is returned when removing a source a layer still draws.
	ErrSourceInUse = errors.New("source is used by a layer")
)

// Surface is the drawing target for overlays. Sources hold geometry; layers
// draw a source. A source cannot be removed while a layer uses it, and ids
// cannot be added twice.
type Surface interface {
	AddSource(id string, geometry upstream.Geometry) error
	RemoveSource(id string) error
	AddLayer(id, sourceID string) error
	RemoveLayer(id string) error
}

// Overlays owns the route overlay on a Surface.
type Overlays struct {
	mu      sync.Mutex
	surface Surface
}

// NewOverlays manages overlays on s.
func NewOverlays(s Surface) *Overlays {
	return &Overlays{surface: s}
}

// ShowRoute replaces the route overlay with g. The old layer and source are
// always removed first (absent ones are skipped), then the new source and
// layer are added, so the sequence never depends on what is displayed.
func (o *Overlays) ShowRoute(g upstream.Geometry) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.clearLocked(); err != nil {
		return err
	}
	if err := o.surface.AddSource(RouteSourceID, g); err != nil {
		return fmt.Errorf("add route source: %w", err)
	}
	if err := o.surface.AddLayer(RouteLayerID, RouteSourceID); err != nil {
		return fmt.Errorf("add route layer: %w", err)
	}
	return nil
}

// ClearRoute removes the route overlay if one is shown.
func (o *Overlays) ClearRoute() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clearLocked()
}

func (o *Overlays) clearLocked() error {
	if err := o.surface.RemoveLayer(RouteLayerID); err != nil && !errors.Is(err, ErrNoSuchOverlay) {
		return fmt.Errorf("remove route layer: %w", err)
	}
	if err := o.surface.RemoveSource(RouteSourceID); err != nil && !errors.Is(err, ErrNoSuchOverlay) {
		return fmt.Errorf("remove route source: %w", err)
	}
	return nil
}

// LayerSet is an in-memory Surface that records every operation.
type LayerSet struct {
	mu      sync.Mutex
	sources map[string]upstream.Geometry
	layers  map[string]string // layer id -> source id
	ops     []string
}

// NewLayerSet creates an empty surface.
func NewLayerSet() *LayerSet {
	return &LayerSet{
		sources: make(map[string]upstream.Geometry),
		layers:  make(map[string]string),
	}
}

func (l *LayerSet) AddSource(id string, geometry upstream.Geometry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, "add-source:"+id)
	if _, ok := l.sources[id]; ok {
		return fmt.Errorf("source %q: %w", id, ErrOverlayExists)
	}
	l.sources[id] = geometry
	return nil
}

func (l *LayerSet) RemoveSource(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, "remove-source:"+id)
	if _, ok := l.sources[id]; !ok {
		return fmt.Errorf("source %q: %w", id, ErrNoSuchOverlay)
	}
	for layer, src := range l.layers {
		if src == id {
			return fmt.Errorf("source %q drawn by %q: %w", id, layer, ErrSourceInUse)
		}
	}
	delete(l.sources, id)
	return nil
}

func (l *LayerSet) AddLayer(id, sourceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, "add-layer:"+id)
	if _, ok := l.layers[id]; ok {
		return fmt.Errorf("layer %q: %w", id, ErrOverlayExists)
	}
	if _, ok := l.sources[sourceID]; !ok {
		return fmt.Errorf("layer %q source %q: %w", id, sourceID, ErrNoSuchOverlay)
	}
	l.layers[id] = sourceID
	return nil
}

func (l *LayerSet) RemoveLayer(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, "remove-layer:"+id)
	if _, ok := l.layers[id]; !ok {
		return fmt.Errorf("layer %q: %w", id, ErrNoSuchOverlay)
	}
	delete(l.layers, id)
	return nil
}

// Source returns the geometry of a source.
func (l *LayerSet) Source(id string) (upstream.Geometry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.sources[id]
	return g, ok
}

// Layers returns the sorted layer ids.
func (l *LayerSet) Layers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.layers))
	for id := range l.layers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ops returns the recorded operations in order.
func (l *LayerSet) Ops() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}
