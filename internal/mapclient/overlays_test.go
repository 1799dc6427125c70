// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package mapclient

import (
	"errors"
	"reflect"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/worldmap/internal/upstream"
)

func line(coords string) upstream.Geometry {
	return upstream.Geometry{Type: "LineString", Coordinates: json.RawMessage(coords)}
}

func TestShowRouteReplacesInOrder(t *testing.T) {
	surface := NewLayerSet()
	o := NewOverlays(surface)

	if err := o.ShowRoute(line(`[[0,0],[1,1]]`)); err != nil {
		t.Fatalf("first ShowRoute() error = %v", err)
	}
	if err := o.ShowRoute(line(`[[2,2],[3,3]]`)); err != nil {
		t.Fatalf("second ShowRoute() error = %v", err)
	}

	want := []string{
		"remove-layer:route", "remove-source:route", "add-source:route", "add-layer:route",
		"remove-layer:route", "remove-source:route", "add-source:route", "add-layer:route",
	}
	if got := surface.Ops(); !reflect.DeepEqual(got, want) {
		t.Errorf("ops = %v\nwant %v", got, want)
	}

	g, ok := surface.Source(RouteSourceID)
	if !ok || string(g.Coordinates) != `[[2,2],[3,3]]` {
		t.Errorf("route source = %+v", g)
	}
	if layers := surface.Layers(); len(layers) != 1 || layers[0] != RouteLayerID {
		t.Errorf("layers = %v", layers)
	}
}

func TestClearRoute(t *testing.T) {
	surface := NewLayerSet()
	o := NewOverlays(surface)

	if err := o.ClearRoute(); err != nil {
		t.Fatalf("ClearRoute() on empty surface = %v", err)
	}
	_ = o.ShowRoute(line(`[[0,0],[1,1]]`))
	if err := o.ClearRoute(); err != nil {
		t.Fatal(err)
	}
	if _, ok := surface.Source(RouteSourceID); ok || len(surface.Layers()) != 0 {
		t.Error("route still shown after ClearRoute")
	}
}

func TestLayerSetRules(t *testing.T) {
	l := NewLayerSet()
	if err := l.AddLayer("a", "missing"); !errors.Is(err, ErrNoSuchOverlay) {
		t.Errorf("AddLayer without source = %v", err)
	}
	_ = l.AddSource("s", line(`[]`))
	if err := l.AddSource("s", line(`[]`)); !errors.Is(err, ErrOverlayExists) {
		t.Errorf("duplicate AddSource = %v", err)
	}
	_ = l.AddLayer("a", "s")
	if err := l.RemoveSource("s"); !errors.Is(err, ErrSourceInUse) {
		t.Errorf("RemoveSource in use = %v", err)
	}
}

type brokenSurface struct{ *LayerSet }

func (brokenSurface) RemoveLayer(string) error { return errors.New("renderer crashed") }

func TestShowRoutePropagatesSurfaceErrors(t *testing.T) {
	o := NewOverlays(brokenSurface{NewLayerSet()})
	if err := o.ShowRoute(line(`[]`)); err == nil {
		t.Error("ShowRoute() = nil, want surface error")
	}
}
