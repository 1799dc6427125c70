// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package api

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/worldmap/internal/auth"
	"github.com/tomtom215/worldmap/internal/gateway"
	"github.com/tomtom215/worldmap/internal/models"
)

// maxJSONBody bounds marker and auth request bodies.
const maxJSONBody = 64 << 10

// decodeJSON reads a single JSON object from the body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			badRequest(w, r, "body", "request body too large")
			return false
		}
		badRequest(w, r, "body", "request body must be a JSON object")
		return false
	}
	return true
}

// markerID parses the {id} URL parameter.
func markerID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(w, r, "id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// ListMarkers handles GET /markers.
func (h *Handler) ListMarkers(w http.ResponseWriter, r *http.Request) {
	markers, err := h.gateway.ListMarkers(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markers)
}

// GetMarker handles GET /markers/{id}.
func (h *Handler) GetMarker(w http.ResponseWriter, r *http.Request) {
	id, ok := markerID(w, r)
	if !ok {
		return
	}
	m, err := h.gateway.GetMarker(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// CreateMarker handles POST /markers.
func (h *Handler) CreateMarker(w http.ResponseWriter, r *http.Request) {
	var req gateway.CreateMarkerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.UserID = auth.UserIDFromContext(r.Context())

	m, err := h.gateway.CreateMarker(r.Context(), req)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMarker handles PATCH /markers/{id}.
func (h *Handler) UpdateMarker(w http.ResponseWriter, r *http.Request) {
	id, ok := markerID(w, r)
	if !ok {
		return
	}
	var req gateway.UpdateMarkerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.gateway.UpdateMarker(r.Context(), id, req)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// AttachPhoto handles POST /markers/{id}/photo with a multipart "photo"
// field.
func (h *Handler) AttachPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := markerID(w, r)
	if !ok {
		return
	}

	maxBytes := int64(10 << 20)
	if h.config != nil && h.config.Uploads.MaxBytes > 0 {
		maxBytes = h.config.Uploads.MaxBytes
	}
	// Leave room for multipart framing; the upload store enforces the exact
	// file limit.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+64<<10)

	mr, err := r.MultipartReader()
	if err != nil {
		badRequest(w, r, "photo", "request must be multipart/form-data")
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			badRequest(w, r, "photo", "photo is required")
			return
		}
		if err != nil {
			badRequest(w, r, "photo", "malformed multipart body")
			return
		}
		if part.FormName() != "photo" {
			_ = part.Close()
			continue
		}

		m, err := h.gateway.AttachPhoto(r.Context(), id, gateway.Upload{Name: part.FileName(), Reader: part})
		_ = part.Close()
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				badRequest(w, r, "photo", "photo is too large")
				return
			}
			respondDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
		return
	}
}

// viewQuery is the parsed zoom and bounding box of a cluster request.
type viewQuery struct {
	zoom     int
	viewport models.Viewport
}

func parseViewQuery(r *http.Request) (viewQuery, error) {
	q := r.URL.Query()
	vq := viewQuery{viewport: models.WorldViewport}

	zoomStr := q.Get("zoom")
	if zoomStr == "" {
		return vq, models.NewValidationError("zoom", "required", "zoom is required")
	}
	zoom, err := strconv.ParseFloat(zoomStr, 64)
	if err != nil || math.IsNaN(zoom) || zoom < 0 || zoom > 24 {
		return vq, models.NewValidationError("zoom", "range", "zoom must be a number between 0 and 24")
	}
	vq.zoom = int(zoom)

	bounds := []struct {
		name string
		dst  *float64
	}{
		{"west", &vq.viewport.West},
		{"south", &vq.viewport.South},
		{"east", &vq.viewport.East},
		{"north", &vq.viewport.North},
	}
	for _, b := range bounds {
		s := q.Get(b.name)
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return vq, models.NewValidationError(b.name, "number", b.name+" must be a number")
		}
		*b.dst = v
	}
	if !vq.viewport.Valid() {
		return vq, models.NewValidationError("viewport", "range", "viewport bounds are out of range")
	}
	return vq, nil
}

// Clusters handles GET /markers/clusters.
func (h *Handler) Clusters(w http.ResponseWriter, r *http.Request) {
	vq, err := parseViewQuery(r)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	markers, err := h.gateway.ListMarkers(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.clusters.Cluster(markers, vq.viewport, vq.zoom))
}

// Heatmap handles GET /markers/heatmap.
func (h *Handler) Heatmap(w http.ResponseWriter, r *http.Request) {
	vq, err := parseViewQuery(r)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	markers, err := h.gateway.ListMarkers(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	params := h.clusters.Params()
	radiusPx := 30.0
	if h.config != nil && h.config.Cluster.HeatRadiusPx > 0 {
		radiusPx = h.config.Cluster.HeatRadiusPx
	}
	writeJSON(w, http.StatusOK, params.Heatmap(markers, vq.viewport, vq.zoom, params.PixelsToDegrees(radiusPx, vq.zoom)))
}
