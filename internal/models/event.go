// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package models

import "fmt"

// ChangeKind tags a ChangeEvent. The string values are the realtime message
// types seen by websocket clients.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "marker:created"
	ChangeUpdated ChangeKind = "marker:updated"
)

// Valid reports whether k is a known change kind.
func (k ChangeKind) Valid() bool {
	return k == ChangeCreated || k == ChangeUpdated
}

// ChangeEvent carries the full marker snapshot after a successful mutation.
// Events for one marker are ordered by Marker.Version; there is no ordering
// across markers.
type ChangeEvent struct {
	Kind   ChangeKind `json:"type"`
	Marker Marker     `json:"data"`
}

// NewCreatedEvent builds the event broadcast after a marker is created.
func NewCreatedEvent(m Marker) ChangeEvent {
	return ChangeEvent{Kind: ChangeCreated, Marker: m}
}

// NewUpdatedEvent builds the event broadcast after a marker is updated.
func NewUpdatedEvent(m Marker) ChangeEvent {
	return ChangeEvent{Kind: ChangeUpdated, Marker: m}
}

// Sequence is the server-assigned per-marker ordering key.
func (e ChangeEvent) Sequence() uint64 {
	return e.Marker.Version
}

func (e ChangeEvent) String() string {
	return fmt.Sprintf("%s id=%d v=%d", e.Kind, e.Marker.ID, e.Marker.Version)
}
