// Package server exposes rendering and correction over HTTP with gin.
//
// Routes:
//
//	GET  /health      liveness, pool occupancy and memory
//	GET  /v1/pool     pool statistics
//	POST /v1/render   render one document, respond with the artifact
//	POST /v1/deck     render ordered slides into one PDF
//	POST /v1/correct  run a correction session, respond with JSON
//
// Render and deck respond with raw bytes unless the request accepts
// application/json, in which case the artifact is base64 in an
// ArtifactResponse.
package server
