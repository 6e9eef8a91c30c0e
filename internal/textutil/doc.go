// Package textutil provides small text helpers shared by the transcript and
// ingest code: typographic normalization, safe name tokens and truncation.
package textutil
