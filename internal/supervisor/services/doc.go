// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

/*
Package services adapts WorldMap components to suture's Serve(ctx) model.

HTTP Server (HTTPServerService):
  - Runs ListenAndServe and translates context cancellation into Shutdown
  - Runs registered hooks before Shutdown; the server uses one to drain
    websocket clients, which http.Server.Shutdown does not close

Realtime Hub (HubService):
  - Runs the websocket hub event loop
  - A hub runs once, so an unexpected exit terminates the tree instead of
    restarting a hub nothing can register with

The store's value log GC loop (store.GCService) and the map client
(mapclient.Client) implement suture.Service themselves and are added to the
tree directly.
*/
package services
