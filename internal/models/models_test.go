// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package models

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestValidateMarker(t *testing.T) {
	tests := []struct {
		name       string
		marker     Marker
		wantFields []string
	}{
		{"valid", Marker{Title: "Cafe", Lat: 10, Lng: 10}, nil},
		{"edges", Marker{Title: "Pole", Lat: 90, Lng: -180}, nil},
		{"empty title", Marker{Title: "  ", Lat: 0, Lng: 0}, []string{"title"}},
		{"lat too high", Marker{Title: "x", Lat: 90.1, Lng: 0}, []string{"lat"}},
		{"lng too low", Marker{Title: "x", Lat: 0, Lng: -180.5}, []string{"lng"}},
		{"nan lat", Marker{Title: "x", Lat: math.NaN(), Lng: 0}, []string{"lat"}},
		{"all bad", Marker{Lat: -91, Lng: 181}, []string{"title", "lat", "lng"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMarker(&tt.marker)
			if tt.wantFields == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if len(ve.Fields) != len(tt.wantFields) {
				t.Fatalf("fields = %+v, want %v", ve.Fields, tt.wantFields)
			}
			for i, f := range tt.wantFields {
				if ve.Fields[i].Field != f {
					t.Errorf("field[%d] = %s, want %s", i, ve.Fields[i].Field, f)
				}
			}
		})
	}
}

func TestIsValidationWrapped(t *testing.T) {
	err := fmt.Errorf("create: %w", NewValidationError("title", "required", "title is required"))
	if !IsValidation(err) {
		t.Error("wrapped validation error not detected")
	}
	if IsValidation(ErrNotFound) {
		t.Error("ErrNotFound reported as validation error")
	}
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	markers := []Marker{
		{ID: 1, CreatedAt: base},
		{ID: 3, CreatedAt: base.Add(time.Minute)},
		{ID: 2, CreatedAt: base},
		{ID: 4, CreatedAt: base.Add(-time.Minute)},
	}
	SortNewestFirst(markers)

	want := []uint64{3, 2, 1, 4}
	for i, id := range want {
		if markers[i].ID != id {
			t.Fatalf("position %d: got id %d, want %d", i, markers[i].ID, id)
		}
	}
}

func TestMarkerPatchApply(t *testing.T) {
	m := Marker{Title: "old", Lat: 1, Lng: 2}
	title := "new"
	photo := "/uploads/1-a.jpg"
	p := MarkerPatch{Title: &title, Photo: &photo}
	if p.Empty() {
		t.Fatal("patch should not be empty")
	}
	p.Apply(&m)
	if m.Title != "new" || m.Photo != photo || m.Lat != 1 || m.Lng != 2 {
		t.Errorf("unexpected marker after patch: %+v", m)
	}
	if !(&MarkerPatch{}).Empty() {
		t.Error("zero patch should be empty")
	}
}

func TestViewportContains(t *testing.T) {
	v := Viewport{West: -10, South: -10, East: 10, North: 10}
	if !v.Contains(Position{Lat: 10, Lng: -10}) {
		t.Error("edge point should be contained")
	}
	if v.Contains(Position{Lat: 11, Lng: 0}) {
		t.Error("point north of viewport should not be contained")
	}

	wrap := Viewport{West: 170, South: -10, East: -170, North: 10}
	if !wrap.Contains(Position{Lat: 0, Lng: 175}) || !wrap.Contains(Position{Lat: 0, Lng: -175}) {
		t.Error("antimeridian viewport should contain both sides")
	}
	if wrap.Contains(Position{Lat: 0, Lng: 0}) {
		t.Error("antimeridian viewport should not contain 0")
	}
}

func TestChangeEvent(t *testing.T) {
	m := Marker{ID: 7, Version: 3}
	ev := NewUpdatedEvent(m)
	if ev.Kind != ChangeUpdated || ev.Sequence() != 3 {
		t.Errorf("unexpected event %s", ev)
	}
	if !ChangeCreated.Valid() || ChangeKind("marker:deleted").Valid() {
		t.Error("ChangeKind.Valid mismatch")
	}
}
