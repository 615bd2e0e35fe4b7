// Package routes wires the gin router:
//
//   - api.go: the /v1 API and health probes
//   - web.go: index and endpoint listing
//
// Use routes.SetupAllRoutes(router, documentController, adminController).
package routes
