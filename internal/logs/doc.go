// Package logs reads the JSON log file written by the logging package.
//
// It decodes records into Entry values, filters them by job, run, stage, or
// minimum level, and tails the file with bounded memory. Follow polls for
// appended lines until the caller's context is cancelled, which is how
// `graphmem logs --follow` streams a running pipeline.
package logs
