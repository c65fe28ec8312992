// Package api provides the HTTP REST interface of the Luftuj core.
//
// It exposes the unit catalog, live register values, timeline status, and
// the persisted schedule/mode/settings documents to installer tooling and
// the web frontend.
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: all methods are safe for concurrent use.
package api
