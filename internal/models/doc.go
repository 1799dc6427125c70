// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

/*
Package models defines the data shared by every WorldMap layer: markers and
their change events, users, cluster output, and the domain errors the HTTP
layer maps to status codes.

Markers are identified by a server-assigned uint64 and carry a Version that
starts at 1 and grows with each update. A ChangeEvent always carries the
full marker snapshot, so applying the same event twice is harmless.

Errors:

	ErrNotFound       missing marker or user (404)
	ErrConflict       duplicate email (409)
	ErrUpstream       geocoding or routing failure (502)
	*ValidationError  per-field input errors (400)
*/
package models
