// Package api serves the client status and remote-control operations over
// HTTP.
//
// Routes:
//
//	GET    /api/v1/status
//	GET    /api/v1/health
//	POST   /api/v1/connect              {"host", "port", "name"}
//	POST   /api/v1/reconnect
//	POST   /api/v1/disconnect
//	POST   /api/v1/commands/{command}   NEXT, PREVIOUS, CLEAR_OUTPUT, CLEAR_ALL, CLEAR_SLIDE
//	GET    /api/v1/history
//	DELETE /api/v1/history
//	DELETE /api/v1/history/{id}
//	GET    /api/v1/settings
//	PATCH  /api/v1/settings
//	POST   /api/v1/discovery/start
//	POST   /api/v1/discovery/stop
//	GET    /metrics
//
// Failures are returned as {"error": message, "kind": kind}.
package api
