// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package cluster

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/worldmap/internal/cache"
	"github.com/tomtom215/worldmap/internal/metrics"
	"github.com/tomtom215/worldmap/internal/models"
)

type memoKey struct {
	zoom     int
	viewport models.Viewport
	hash     uint64
}

func (k memoKey) String() string {
	return fmt.Sprintf("%d|%g,%g,%g,%g|%x", k.zoom,
		k.viewport.West, k.viewport.South, k.viewport.East, k.viewport.North, k.hash)
}

// Memo caches Cluster output by (zoom, viewport, Hash(markers)) and collapses
// concurrent identical computations into one.
type Memo struct {
	params Params
	lru    *cache.LRU[memoKey, []models.Cluster]
	group  singleflight.Group
}

// NewMemo creates a memo holding up to size results.
func NewMemo(params Params, size int) *Memo {
	return &Memo{
		params: params,
		lru:    cache.NewLRU[memoKey, []models.Cluster](size, 0),
	}
}

// Params returns the grid parameters.
func (m *Memo) Params() Params {
	return m.params
}

// Cluster returns Params.Cluster for the inputs, from cache when possible.
// The returned slice is shared with the cache and must not be modified.
func (m *Memo) Cluster(markers []models.Marker, viewport models.Viewport, zoom int) []models.Cluster {
	key := memoKey{zoom: zoom, viewport: viewport, hash: Hash(markers)}
	if out, ok := m.lru.Get(key); ok {
		metrics.ClusterMemoHits.Inc()
		return out
	}

	v, _, _ := m.group.Do(key.String(), func() (interface{}, error) {
		if out, ok := m.lru.Get(key); ok {
			metrics.ClusterMemoHits.Inc()
			return out, nil
		}
		metrics.ClusterMemoMisses.Inc()
		out := m.params.Cluster(markers, viewport, zoom)
		m.lru.Add(key, out)
		return out, nil
	})
	return v.([]models.Cluster)
}

// Len returns the number of cached results.
func (m *Memo) Len() int {
	return m.lru.Len()
}
