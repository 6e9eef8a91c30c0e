// Package services defines shared utilities consumed by the stage
// collaborators and the pipeline runner.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and run identifiers
//     for logging.
//   - Structured error markers plus the Wrap helper so collaborator failures
//     carry a classification into logs and a readable message into the job's
//     error record.
//   - A command runner abstraction that keeps external tool invocations
//     testable.
package services
