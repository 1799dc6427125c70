// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

// Package models defines the data structures shared by the marker store, the
// realtime hub, the client replica and the spatial aggregator.
package models

import (
	"sort"
	"time"
)

// Marker is a user-placed point of interest.
//
// ID and CreatedAt are assigned by the store on creation and never change.
// Version starts at 1 and is incremented by every update; concurrent updates
// to the same marker are last-write-wins and Version records which write won.
type Marker struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Photo       string    `json:"photo,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     uint64    `json:"version"`
}

// Position returns the marker's coordinates.
func (m *Marker) Position() Position {
	return Position{Lat: m.Lat, Lng: m.Lng}
}

// Position is a WGS 84 coordinate.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is inside the WGS 84 ranges.
func (p Position) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// MarkerFields are the caller-supplied fields of a new marker.
type MarkerFields struct {
	Title       string
	Description string
	Lat         float64
	Lng         float64
	UserID      string
}

// MarkerPatch is a partial update. Nil fields are left unchanged.
type MarkerPatch struct {
	Title       *string
	Description *string
	Lat         *float64
	Lng         *float64
	Photo       *string
}

// Empty reports whether the patch changes nothing.
func (p *MarkerPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Lat == nil && p.Lng == nil && p.Photo == nil
}

// Apply copies the non-nil patch fields onto m.
func (p *MarkerPatch) Apply(m *Marker) {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.Lat != nil {
		m.Lat = *p.Lat
	}
	if p.Lng != nil {
		m.Lng = *p.Lng
	}
	if p.Photo != nil {
		m.Photo = *p.Photo
	}
}

// SortNewestFirst orders markers by CreatedAt descending. Markers created in
// the same instant fall back to id descending, which matches insertion order
// because ids come from a monotonic sequence.
func SortNewestFirst(markers []Marker) {
	sort.SliceStable(markers, func(i, j int) bool {
		if !markers[i].CreatedAt.Equal(markers[j].CreatedAt) {
			return markers[i].CreatedAt.After(markers[j].CreatedAt)
		}
		return markers[i].ID > markers[j].ID
	})
}
