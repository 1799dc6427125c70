// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

// Package gateway is the single write path for markers. Every mutation is
// validated, written to the store and, only when the write succeeded,
// published to the realtime broadcaster.
package gateway

import (
	"context"
	"io"
	"time"

	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/metrics"
	"github.com/tomtom215/worldmap/internal/models"
	"github.com/tomtom215/worldmap/internal/uploads"
	"github.com/tomtom215/worldmap/internal/validation"
)

// MarkerRepository is the marker store.
type MarkerRepository interface {
	Create(ctx context.Context, fields models.MarkerFields) (models.Marker, error)
	Update(ctx context.Context, id uint64, patch models.MarkerPatch) (models.Marker, error)
	Get(ctx context.Context, id uint64) (models.Marker, error)
	List(ctx context.Context) ([]models.Marker, error)
}

// PhotoStore persists uploaded photos.
type PhotoStore interface {
	Save(ctx context.Context, originalName string, r io.Reader) (uploads.Stored, error)
	Remove(stored uploads.Stored) error
}

// Broadcaster fans change events out to realtime subscribers. Publish must
// not block.
type Broadcaster interface {
	Publish(event models.ChangeEvent)
}

// CreateMarkerRequest is the body of POST /markers.
type CreateMarkerRequest struct {
	Title       string   `json:"title" validate:"notblank,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Lat         *float64 `json:"lat" validate:"required,latitude"`
	Lng         *float64 `json:"lng" validate:"required,longitude"`

	// UserID is filled from the bearer token, never from the body.
	UserID string `json:"-"`
}

// UpdateMarkerRequest is the body of PATCH /markers/{id}. Absent fields are
// left unchanged.
type UpdateMarkerRequest struct {
	Title       *string  `json:"title" validate:"omitnil,notblank,max=200"`
	Description *string  `json:"description" validate:"omitnil,max=2000"`
	Lat         *float64 `json:"lat" validate:"omitnil,latitude"`
	Lng         *float64 `json:"lng" validate:"omitnil,longitude"`
}

// Upload is a photo file received from a client.
type Upload struct {
	Name   string
	Reader io.Reader
}

// Gateway validates and applies marker mutations.
type Gateway struct {
	markers     MarkerRepository
	photos      PhotoStore
	broadcaster Broadcaster
}

// New creates a gateway. photos may be nil when uploads are disabled.
func New(markers MarkerRepository, photos PhotoStore, broadcaster Broadcaster) *Gateway {
	return &Gateway{markers: markers, photos: photos, broadcaster: broadcaster}
}

// ListMarkers returns all markers, newest first.
func (g *Gateway) ListMarkers(ctx context.Context) ([]models.Marker, error) {
	start := time.Now()
	markers, err := g.markers.List(ctx)
	metrics.RecordStoreOp("list", time.Since(start), err)
	return markers, err
}

// GetMarker returns one marker.
func (g *Gateway) GetMarker(ctx context.Context, id uint64) (models.Marker, error) {
	start := time.Now()
	m, err := g.markers.Get(ctx, id)
	metrics.RecordStoreOp("get", time.Since(start), err)
	return m, err
}

// CreateMarker validates req, stores the marker and publishes marker:created.
func (g *Gateway) CreateMarker(ctx context.Context, req CreateMarkerRequest) (models.Marker, error) {
	if err := validation.ValidateStruct(&req); err != nil {
		return models.Marker{}, err
	}

	start := time.Now()
	m, err := g.markers.Create(ctx, models.MarkerFields{
		Title:       req.Title,
		Description: req.Description,
		Lat:         *req.Lat,
		Lng:         *req.Lng,
		UserID:      req.UserID,
	})
	metrics.RecordStoreOp("create", time.Since(start), err)
	if err != nil {
		return models.Marker{}, err
	}

	g.publish(ctx, models.NewCreatedEvent(m))
	return m, nil
}

// UpdateMarker applies a partial edit and publishes marker:updated.
func (g *Gateway) UpdateMarker(ctx context.Context, id uint64, req UpdateMarkerRequest) (models.Marker, error) {
	if err := validation.ValidateStruct(&req); err != nil {
		return models.Marker{}, err
	}
	patch := models.MarkerPatch{
		Title:       req.Title,
		Description: req.Description,
		Lat:         req.Lat,
		Lng:         req.Lng,
	}
	if patch.Empty() {
		return models.Marker{}, models.NewValidationError("body", "required", "at least one field must be provided")
	}
	return g.update(ctx, id, patch)
}

// AttachPhoto stores the upload and points the marker's photo at it. The
// marker must exist before anything is written; if the store update fails the
// saved file is removed again.
func (g *Gateway) AttachPhoto(ctx context.Context, id uint64, upload Upload) (models.Marker, error) {
	if g.photos == nil {
		return models.Marker{}, models.NewValidationError("photo", "disabled", "photo uploads are disabled")
	}
	if upload.Reader == nil {
		return models.Marker{}, models.NewValidationError("photo", "required", "photo is required")
	}
	if _, err := g.GetMarker(ctx, id); err != nil {
		return models.Marker{}, err
	}

	stored, err := g.photos.Save(ctx, upload.Name, upload.Reader)
	if err != nil {
		return models.Marker{}, err
	}

	photo := stored.URL
	m, err := g.update(ctx, id, models.MarkerPatch{Photo: &photo})
	if err != nil {
		if rmErr := g.photos.Remove(stored); rmErr != nil {
			logging.Ctx(ctx).Warn().Err(rmErr).Str("path", stored.Path).Msg("Failed to clean up orphaned photo")
		}
		return models.Marker{}, err
	}

	metrics.PhotoUploadBytes.Add(float64(stored.Size))
	return m, nil
}

func (g *Gateway) update(ctx context.Context, id uint64, patch models.MarkerPatch) (models.Marker, error) {
	start := time.Now()
	m, err := g.markers.Update(ctx, id, patch)
	metrics.RecordStoreOp("update", time.Since(start), err)
	if err != nil {
		return models.Marker{}, err
	}

	g.publish(ctx, models.NewUpdatedEvent(m))
	return m, nil
}

func (g *Gateway) publish(ctx context.Context, event models.ChangeEvent) {
	metrics.MarkerMutations.WithLabelValues(string(event.Kind)).Inc()
	logging.Ctx(ctx).Debug().
		Str("type", string(event.Kind)).
		Uint64("marker_id", event.Marker.ID).
		Uint64("version", event.Marker.Version).
		Msg("Marker changed")
	if g.broadcaster != nil {
		g.broadcaster.Publish(event)
	}
}
