// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

// Package cluster computes zoom-dependent views of a marker set: grid
// clusters and a heatmap density surface.
//
// Both views bucket markers into a uniform grid whose cell edge in degrees is
//
//	radiusPx * 360 / (tileSize * 2^zoom)
//
// so a cell covers roughly one cluster radius on screen at that zoom. All
// functions are pure: the same markers, viewport and zoom give the same
// output regardless of input order.
package cluster

import (
	"math"
	"sort"
	"time"

	"github.com/tomtom215/worldmap/internal/config"
	"github.com/tomtom215/worldmap/internal/metrics"
	"github.com/tomtom215/worldmap/internal/models"
)

// Params controls the grid.
type Params struct {
	RadiusPx float64
	TileSize float64

	// MaxZoom is the highest zoom that still aggregates. Above it every
	// marker is a leaf.
	MaxZoom int
}

// DefaultParams matches the map client: 50px radius, 512px tiles, zoom 14.
func DefaultParams() Params {
	return Params{RadiusPx: 50, TileSize: 512, MaxZoom: 14}
}

// ParamsFromConfig builds Params, falling back to defaults for zero values.
func ParamsFromConfig(cfg config.ClusterConfig) Params {
	p := DefaultParams()
	if cfg.RadiusPx > 0 {
		p.RadiusPx = cfg.RadiusPx
	}
	if cfg.TileSize > 0 {
		p.TileSize = cfg.TileSize
	}
	if cfg.MaxZoom > 0 {
		p.MaxZoom = cfg.MaxZoom
	}
	return p
}

// CellSize returns the grid cell edge in degrees at zoom.
func (p Params) CellSize(zoom int) float64 {
	if zoom < 0 {
		zoom = 0
	}
	return p.RadiusPx * 360 / (p.TileSize * math.Exp2(float64(zoom)))
}

// PixelsToDegrees converts a screen distance at zoom into degrees of
// longitude.
func (p Params) PixelsToDegrees(px float64, zoom int) float64 {
	if zoom < 0 {
		zoom = 0
	}
	return px * 360 / (p.TileSize * math.Exp2(float64(zoom)))
}

// cellKey is a grid cell coordinate.
type cellKey struct {
	X, Y int
}

func keyFor(pos models.Position, size float64) cellKey {
	return cellKey{
		X: int(math.Floor(pos.Lng / size)),
		Y: int(math.Floor(pos.Lat / size)),
	}
}

func (k cellKey) less(o cellKey) bool {
	if k.Y != o.Y {
		return k.Y < o.Y
	}
	return k.X < o.X
}

func (k cellKey) center(size float64) models.Position {
	return models.Position{
		Lat: (float64(k.Y) + 0.5) * size,
		Lng: (float64(k.X) + 0.5) * size,
	}
}

// Cluster groups the markers inside viewport. Markers sharing a cell form
// one aggregate whose centroid is the mean member position; a marker alone
// in its cell, or any marker above MaxZoom, is a leaf.
//
// Output is ordered by cell row, cell column, then smallest member id. The
// counts always sum to the number of markers in view.
func (p Params) Cluster(markers []models.Marker, viewport models.Viewport, zoom int) []models.Cluster {
	start := time.Now()
	defer func() {
		metrics.ClusterComputeDuration.WithLabelValues("cluster").Observe(time.Since(start).Seconds())
	}()

	size := p.CellSize(zoom)
	leavesOnly := zoom > p.MaxZoom

	type bucket struct {
		key     cellKey
		members []models.Marker
	}
	buckets := make(map[cellKey]*bucket)
	var leaves []bucket

	for i := range markers {
		m := markers[i]
		pos := m.Position()
		if !viewport.Contains(pos) {
			continue
		}
		key := keyFor(pos, size)
		if leavesOnly {
			leaves = append(leaves, bucket{key: key, members: []models.Marker{m}})
			continue
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{key: key}
			buckets[key] = b
		}
		b.members = append(b.members, m)
	}
	for _, b := range buckets {
		leaves = append(leaves, *b)
	}

	type keyed struct {
		key     cellKey
		cluster models.Cluster
	}
	ordered := make([]keyed, len(leaves))
	for i, b := range leaves {
		ordered[i] = keyed{key: b.key, cluster: aggregate(b.members)}
	}
	sort.Slice(ordered, func(a, b int) bool {
		if ordered[a].key != ordered[b].key {
			return ordered[a].key.less(ordered[b].key)
		}
		return ordered[a].cluster.MemberIDs[0] < ordered[b].cluster.MemberIDs[0]
	})

	out := make([]models.Cluster, len(ordered))
	for i := range ordered {
		out[i] = ordered[i].cluster
	}
	return out
}

// canonical returns a copy of markers ordered by id, then position, so float
// sums over it do not depend on the caller's ordering.
func canonical(markers []models.Marker) []models.Marker {
	out := make([]models.Marker, len(markers))
	copy(out, markers)
	sort.Slice(out, func(a, b int) bool {
		if out[a].ID != out[b].ID {
			return out[a].ID < out[b].ID
		}
		if out[a].Lat != out[b].Lat {
			return out[a].Lat < out[b].Lat
		}
		return out[a].Lng < out[b].Lng
	})
	return out
}

func aggregate(members []models.Marker) models.Cluster {
	members = canonical(members)
	ids := make([]uint64, len(members))
	var sumLat, sumLng float64
	for i := range members {
		ids[i] = members[i].ID
		sumLat += members[i].Lat
		sumLng += members[i].Lng
	}

	n := float64(len(members))
	c := models.Cluster{
		Centroid:  models.Position{Lat: sumLat / n, Lng: sumLng / n},
		Count:     len(members),
		MemberIDs: ids,
	}
	if len(members) == 1 {
		c.MarkerID = ids[0]
		c.Centroid = members[0].Position()
	}
	return c
}

// Heatmap samples a density surface on the cluster grid. Each marker inside
// viewport adds max(0, 1 - d/radiusDeg) to every cell centre within
// radiusDeg, where d is the planar distance in degrees. Only cells with a
// positive weight whose centre lies in viewport are returned, ordered by row
// then column.
func (p Params) Heatmap(markers []models.Marker, viewport models.Viewport, zoom int, radiusDeg float64) []models.DensityCell {
	start := time.Now()
	defer func() {
		metrics.ClusterComputeDuration.WithLabelValues("heatmap").Observe(time.Since(start).Seconds())
	}()

	if radiusDeg <= 0 {
		return []models.DensityCell{}
	}
	size := p.CellSize(zoom)
	reach := int(math.Ceil(radiusDeg / size))

	markers = canonical(markers)
	weights := make(map[cellKey]float64)
	for i := range markers {
		pos := markers[i].Position()
		if !viewport.Contains(pos) {
			continue
		}
		home := keyFor(pos, size)
		for dy := -reach; dy <= reach; dy++ {
			for dx := -reach; dx <= reach; dx++ {
				key := cellKey{X: home.X + dx, Y: home.Y + dy}
				c := key.center(size)
				d := math.Hypot(c.Lat-pos.Lat, c.Lng-pos.Lng)
				if w := 1 - d/radiusDeg; w > 0 {
					weights[key] += w
				}
			}
		}
	}

	keys := make([]cellKey, 0, len(weights))
	for key := range weights {
		if viewport.Contains(key.center(size)) {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a].less(keys[b]) })

	cells := make([]models.DensityCell, len(keys))
	for i, key := range keys {
		cells[i] = models.DensityCell{Center: key.center(size), Weight: weights[key]}
	}
	return cells
}
