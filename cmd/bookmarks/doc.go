// Package main hosts the bookmarks HTTP service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes CRUD routes for bookmarks, a metadata preview route, health checks, and
//     Prometheus metrics. Request bodies are validated with go-playground/validator before reaching the service.
//   - Service: internal/bookmark.Service owns the create/list/get/update/delete flow. On create it optionally
//     enriches the record by fetching the page and extracting Open Graph, Twitter card, or fallback metadata.
//   - Fetch pipeline: a Colly collector performs the plain HTTP fetch; fetcher.mode=headless switches to a chromedp
//     browser for script-rendered pages. Fetch failures never fail creation.
//   - Persistence: bookmarks live in DynamoDB (the original deployment), Postgres, or memory. Fetched HTML may be
//     archived to memory, the local filesystem, or GCS, and lifecycle events may be published to Pub/Sub.
//
// Quick checklist:
//   - Configure env vars: BOOKMARKS_SERVER_PORT or PORT, TABLE_NAME or BOOKMARKS_STORAGE_DYNAMODB_TABLE,
//     BOOKMARKS_STORAGE_BACKEND, BOOKMARKS_FETCHER_MODE, BOOKMARKS_CACHE_REDIS_ADDR, BOOKMARKS_PUBSUB_*.
//   - Run locally: go run ./cmd/bookmarks -config config.yaml (or rely solely on env overrides).
//   - The process drains in-flight requests on SIGTERM before closing its clients.
package main
