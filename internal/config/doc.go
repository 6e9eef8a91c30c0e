// Package config loads, normalizes, and validates graphmem configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GRAPHMEM_POSTGRES_DSN and GRAPHMEM_INGEST_API_KEY. The Config type carries
// the explicit pipeline settings the runner is constructed from: stage order,
// per-stage concurrency limits, and the collaborator bindings for download,
// transcription, and knowledge-graph ingest.
package config
