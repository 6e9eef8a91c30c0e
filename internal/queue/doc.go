// Package queue persists pipeline job records and exposes the atomic
// operations that move them through the stage state machine.
//
// JobStore is the contract shared by every backend: idempotent intake,
// claim_next with single-owner semantics, complete/fail transitions guarded by
// the transition table, reset for operator retries, and the count and failure
// queries behind the status commands. Store is the SQLite implementation; the
// postgres subpackage provides a server-backed alternative.
//
// Job records are never deleted. Schema changes bump schemaVersion; users
// move the old database aside to adopt the new schema.
package queue
