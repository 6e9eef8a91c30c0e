// Package stage binds external collaborators (downloader, transcriber,
// knowledge-graph ingester) to the pipeline stages they serve.
//
// A Handler receives exactly one job's current-stage input and returns an
// artifact reference or an error. The stage executor owns claiming and status
// transitions; handlers never touch the store.
package stage
