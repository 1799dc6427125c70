// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package models

import (
	"errors"
	"strings"
)

// Sentinel errors shared across packages.
var (
	// ErrNotFound indicates an unknown marker or user.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation (e.g. duplicate email).
	ErrConflict = errors.New("conflict")

	// ErrUpstream indicates a third-party geocoding or routing failure.
	ErrUpstream = errors.New("upstream service failed")
)

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag,omitempty"`
	Message string `json:"message"`
}

// ValidationError reports malformed or out-of-range fields. It is never
// retried.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, tag, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Tag: tag, Message: message}}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateMarker checks that a marker has a non-empty title and a valid
// position.
func ValidateMarker(m *Marker) error {
	var fields []FieldError
	if strings.TrimSpace(m.Title) == "" {
		fields = append(fields, FieldError{Field: "title", Tag: "required", Message: "title is required"})
	}
	if !(m.Lat >= -90 && m.Lat <= 90) {
		fields = append(fields, FieldError{Field: "lat", Tag: "latitude", Message: "lat must be between -90 and 90"})
	}
	if !(m.Lng >= -180 && m.Lng <= 180) {
		fields = append(fields, FieldError{Field: "lng", Tag: "longitude", Message: "lng must be between -180 and 180"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
