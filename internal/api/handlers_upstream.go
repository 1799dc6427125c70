// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package api

import (
	"net/http"

	"github.com/tomtom215/worldmap/internal/upstream"
)

func unavailable(w http.ResponseWriter, r *http.Request, what string) {
	respondError(w, r, http.StatusServiceUnavailable, &APIError{
		Code:    "SERVICE_UNAVAILABLE",
		Message: what + " is not configured",
	}, nil)
}

// GeocodeSearch handles GET /geocode/search?q=. No match is 200 with [].
func (h *Handler) GeocodeSearch(w http.ResponseWriter, r *http.Request) {
	if h.geocoder == nil {
		unavailable(w, r, "geocoding")
		return
	}
	places, err := h.geocoder.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, places)
}

// Route handles GET /route?from=lng,lat&to=lng,lat. No route is 200 with [].
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	if h.routes == nil {
		unavailable(w, r, "routing")
		return
	}
	q := r.URL.Query()
	from, err := upstream.ParseLngLat(q.Get("from"))
	if err != nil {
		badRequest(w, r, "from", err.Error())
		return
	}
	to, err := upstream.ParseLngLat(q.Get("to"))
	if err != nil {
		badRequest(w, r, "to", err.Error())
		return
	}

	routes, err := h.routes.Route(r.Context(), from, to)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}
