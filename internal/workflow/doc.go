// Package workflow composes stage executors into pipeline runs.
//
// A Runner drives either the full pipeline, sweeping every configured stage
// in order until a sweep claims nothing, or a single stage once. Stage order,
// per-stage concurrency limits, and collaborator bindings arrive through an
// explicit Options value built from configuration.
//
// The Controller exposes operator retry on top of the job store's reset, and
// reconciles claims left in progress by a process that exited mid-run.
package workflow
