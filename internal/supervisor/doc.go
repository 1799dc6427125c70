// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

/*
Package supervisor runs WorldMap's long-running services under suture v4.

	RootSupervisor ("worldmap")
	├── DataSupervisor ("data-layer")
	│   └── store.GCService
	├── MessagingSupervisor ("messaging-layer")
	│   └── services.HubService
	└── APISupervisor ("api-layer")
	    └── services.HTTPServerService

Crashed services restart with suture's backoff; cancelling the context stops
every layer, each service bounded by TreeConfig.ShutdownTimeout. Supervisor
events are logged through sutureslog into the zerolog logger.

	tree, err := supervisor.NewSupervisorTree(nil, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(store.NewGCService(db, 10*time.Minute))
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	return tree.Serve(ctx)
*/
package supervisor
