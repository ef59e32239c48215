// Package server exposes the recognition pipeline over HTTP.
//
// Routes:
//
//	POST /v1/scan   multipart "image" upload, optional ?debug=true
//	GET  /healthz   catalog size and fallback configuration
//	GET  /metrics   Prometheus exposition
//
// Only /v1 routes require the bearer token when one is configured. Vision
// failures degrade to the catalog's top-rated list; catalog failures answer
// 503.
package server
