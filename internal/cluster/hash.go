// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package cluster

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/tomtom215/worldmap/internal/models"
)

// Hash fingerprints the clustering-relevant state of markers: id, version
// and position. It does not depend on slice order.
func Hash(markers []models.Marker) uint64 {
	var sum, mix uint64
	var buf [32]byte
	for i := range markers {
		m := &markers[i]
		binary.LittleEndian.PutUint64(buf[0:], m.ID)
		binary.LittleEndian.PutUint64(buf[8:], m.Version)
		binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(m.Lat))
		binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(m.Lng))
		h := xxhash.Sum64(buf[:])
		sum += h
		mix ^= h * 0x9e3779b97f4a7c15
	}
	binary.LittleEndian.PutUint64(buf[0:], sum)
	binary.LittleEndian.PutUint64(buf[8:], mix)
	binary.LittleEndian.PutUint64(buf[16:], uint64(len(markers)))
	return xxhash.Sum64(buf[:24])
}
