// Package daemon owns the long-running side of graphmem: the single-instance
// run lock shared by "run" and "watch", and the cron-scheduled watch loop
// that sweeps the pipeline on every tick.
//
// Keep orchestration logic in the workflow package; this package only decides
// when a sweep starts and makes sure two processes never sweep at once.
package daemon
