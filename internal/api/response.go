// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/worldmap/internal/auth"
	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/models"
)

// APIResponse is the envelope used for errors, health and auxiliary
// endpoints. Marker payloads are written bare.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata is attached to every envelope.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError describes a failed request.
//
// Codes: VALIDATION_ERROR, NOT_FOUND, CONFLICT, UNAUTHORIZED,
// UPSTREAM_ERROR, SERVICE_UNAVAILABLE, INTERNAL_ERROR.
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  []models.FieldError `json:"fields,omitempty"`
}

// sanitizeLogValue replaces control characters so user input cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", r)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// writeJSON marshals v and writes it with status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// respondJSON wraps data in a success envelope.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeJSON(w, status, &APIResponse{
		Status: "success",
		Data:   data,
		Metadata: Metadata{
			Timestamp: time.Now(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
	})
}

// respondError writes an error envelope. err is logged, never sent.
func respondError(w http.ResponseWriter, r *http.Request, status int, apiErr *APIError, err error) {
	if err != nil {
		event := logging.Ctx(r.Context()).Warn()
		if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
			event = logging.Ctx(r.Context()).Error()
		}
		event.Str("code", apiErr.Code).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}

	writeJSON(w, status, &APIResponse{
		Status: "error",
		Metadata: Metadata{
			Timestamp: time.Now(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
		Error: apiErr,
	})
}

// respondDomainError maps domain errors onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(w, r, http.StatusBadRequest, &APIError{
			Code:    "VALIDATION_ERROR",
			Message: ve.Error(),
			Fields:  ve.Fields,
		}, nil)
	case errors.Is(err, models.ErrNotFound):
		respondError(w, r, http.StatusNotFound, &APIError{Code: "NOT_FOUND", Message: "resource not found"}, nil)
	case errors.Is(err, models.ErrConflict):
		respondError(w, r, http.StatusConflict, &APIError{Code: "CONFLICT", Message: "resource already exists"}, nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, r, http.StatusUnauthorized, &APIError{Code: "UNAUTHORIZED", Message: "invalid email or password"}, nil)
	case errors.Is(err, models.ErrUpstream):
		respondError(w, r, http.StatusBadGateway, &APIError{
			Code:    "UPSTREAM_ERROR",
			Message: "the external service is unavailable, please try again later",
		}, err)
	default:
		respondError(w, r, http.StatusInternalServerError, &APIError{Code: "INTERNAL_ERROR", Message: "internal server error"}, err)
	}
}

// badRequest reports a malformed request that never reached the domain.
func badRequest(w http.ResponseWriter, r *http.Request, field, message string) {
	respondDomainError(w, r, models.NewValidationError(field, "invalid", message))
}
