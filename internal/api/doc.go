// Package api hosts the HTTP router, middleware, and bookmark handlers.
// Routes:
//   - POST /bookmarks, GET /bookmarks
//   - GET, PUT, PATCH, DELETE /bookmarks/{bookmarkId}
//   - POST /metadata/preview
//   - GET /healthz and /readyz for liveness and readiness, GET /metrics for Prometheus.
//
// Every response, including errors and recovered panics, carries permissive
// CORS headers, and OPTIONS on any path answers 200 with an empty body.
package api
