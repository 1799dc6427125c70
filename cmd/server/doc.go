// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

/*
Package main is the WorldMap server: a shared map where anyone can drop a
geolocated marker, edit it, attach a photo, and see everyone else's changes
live over a websocket.

# Application Architecture

	RootSupervisor ("worldmap")
	├── DataSupervisor ("data-layer")
	│   └── store-gc (badger value log GC)
	├── MessagingSupervisor ("messaging-layer")
	│   └── websocket-hub
	└── APISupervisor ("api-layer")
	    └── http-server

Component initialization order:

 1. Configuration: koanf v2 (defaults, YAML file, environment)
 2. Logging: zerolog, JSON or console
 3. Store: badger, markers and users
 4. Uploads directory
 5. Websocket hub
 6. Mutation gateway, auth service, cluster memo, geocoder and router
 7. Chi router with middleware
 8. Supervisor tree

# Configuration

	HTTP_PORT=3000               # listener port
	DB_PATH=data/worldmap        # badger directory (DB_IN_MEMORY=true for RAM)
	UPLOAD_DIR=uploads           # photo storage, served under /uploads
	JWT_SECRET=<32+ chars>       # required when ENVIRONMENT=production
	CORS_ORIGINS=*               # comma separated; also gates websocket origins
	NOMINATIM_URL, OSRM_URL      # geocoding and routing upstreams
	LOG_LEVEL=info LOG_FORMAT=json

# Signal Handling

SIGINT and SIGTERM cancel the tree. Websocket clients are drained before the
HTTP server shuts down, then the store is closed.
*/
package main
