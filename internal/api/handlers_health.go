// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package api

import (
	"net/http"
	"time"
)

// HealthLive reports that the process is up, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady returns 200 only when the store answers. Geocoding and routing
// are optional and never make the service unready.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	storeOK := h.store != nil && h.store.Ping(r.Context()) == nil

	data := map[string]interface{}{
		"store_connected":   storeOK,
		"realtime_clients":  0,
		"broadcast_dropped": uint64(0),
		"uptime":            time.Since(h.startTime).Seconds(),
	}
	if h.wsHub != nil {
		data["realtime_clients"] = h.wsHub.Count()
		data["broadcast_dropped"] = h.wsHub.Dropped()
	}
	if b, ok := h.geocoder.(interface{ BreakerState() string }); ok {
		data["geocoder_circuit"] = b.BreakerState()
	}
	if b, ok := h.routes.(interface{ BreakerState() string }); ok {
		data["router_circuit"] = b.BreakerState()
	}

	if !storeOK {
		writeJSON(w, http.StatusServiceUnavailable, &APIResponse{
			Status:   "not_ready",
			Data:     data,
			Metadata: Metadata{Timestamp: time.Now()},
		})
		return
	}
	respondJSON(w, r, http.StatusOK, data)
}
