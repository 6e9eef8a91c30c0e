// Package stageexec drives one pipeline stage over every eligible job with a
// bounded number of collaborator calls in flight.
//
// The executor claims work through queue.JobStore, hands each claimed job to
// a stage.Handler, and converts the handler's outcome into a Complete or Fail
// transition. Collaborator errors never escape Run; only store faults do.
package stageexec
