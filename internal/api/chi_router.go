// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/worldmap/internal/auth"
	"github.com/tomtom215/worldmap/internal/middleware"
)

// Router wires handlers and middleware onto a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil middleware config uses the defaults.
func NewRouter(handler *Handler, mwConfig *ChiMiddlewareConfig) *Router {
	return &Router{handler: handler, chiMiddleware: NewChiMiddleware(mwConfig)}
}

// SetupChi builds the HTTP handler.
func (router *Router) SetupChi() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	// Global middleware, applied in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog(middleware.DefaultSlowThreshold))
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})
	r.Handle("/metrics", promhttp.Handler())

	var jwt *auth.JWTManager
	if h.auth != nil {
		jwt = h.auth.JWT()
	}

	r.Route("/markers", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(OptionalBearer(jwt))

		r.With(chimiddleware.Compress(5, "application/json")).Group(func(r chi.Router) {
			r.Get("/", h.ListMarkers)
			r.Get("/clusters", h.Clusters)
			r.Get("/heatmap", h.Heatmap)
			r.Get("/{id}", h.GetMarker)
		})
		r.Post("/", h.CreateMarker)
		r.Patch("/{id}", h.UpdateMarker)
		r.Post("/{id}/photo", h.AttachPhoto)
	})

	if h.auth != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitAuth())
			r.Use(APISecurityHeaders())
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitUpstream())
		r.Use(APISecurityHeaders())
		r.Get("/geocode/search", h.GeocodeSearch)
		r.Get("/route", h.Route)
	})

	r.Get("/ws", h.WebSocket)

	if h.uploads != nil {
		prefix := h.uploads.URLPrefix()
		r.Handle(prefix+"/*", http.StripPrefix(prefix, noDirListing(http.FileServer(http.Dir(h.uploads.Dir())))))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, &APIError{Code: "NOT_FOUND", Message: "route not found"}, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, &APIError{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"}, nil)
	})

	return r
}

// noDirListing hides directory indexes of the uploads tree.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
