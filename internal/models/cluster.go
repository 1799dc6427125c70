// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package models

// Viewport is a geographic bounding box in degrees.
type Viewport struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// WorldViewport covers the whole map.
var WorldViewport = Viewport{West: -180, South: -90, East: 180, North: 90}

// Contains reports whether p lies inside the viewport, edges included.
// A viewport whose West is greater than East crosses the antimeridian.
func (v Viewport) Contains(p Position) bool {
	if p.Lat < v.South || p.Lat > v.North {
		return false
	}
	if v.West <= v.East {
		return p.Lng >= v.West && p.Lng <= v.East
	}
	return p.Lng >= v.West || p.Lng <= v.East
}

// Valid reports whether the bounds are inside WGS 84 ranges and South <= North.
func (v Viewport) Valid() bool {
	return v.South >= -90 && v.North <= 90 && v.South <= v.North &&
		v.West >= -180 && v.West <= 180 && v.East >= -180 && v.East <= 180
}

// Cluster is either a single marker (Count == 1, MarkerID set) or an
// aggregate of Count >= 2 markers positioned at the members' mean position.
type Cluster struct {
	Centroid  Position `json:"centroid"`
	Count     int      `json:"count"`
	MarkerID  uint64   `json:"marker_id,omitempty"`
	MemberIDs []uint64 `json:"member_ids"`
}

// IsLeaf reports whether the cluster wraps exactly one marker.
func (c Cluster) IsLeaf() bool {
	return c.Count == 1
}

// DensityCell is one sample of the heatmap surface.
type DensityCell struct {
	Center Position `json:"center"`
	Weight float64  `json:"weight"`
}
