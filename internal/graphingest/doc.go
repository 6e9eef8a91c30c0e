// Package graphingest turns transcript files into knowledge-graph episodes.
//
// A transcript is split into its analysis and transcription sections, the
// transcription is chunked, and every piece becomes an episode that a Sink
// delivers. Two sinks exist: an HTTP sink that posts messages to a
// Graphiti-compatible episode endpoint, and a file sink that writes one JSON
// line per episode for offline loading.
package graphingest
