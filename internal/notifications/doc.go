// Package notifications publishes pipeline run alerts to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers notify unconditionally. Delivery failures are returned to the
// caller, which logs them; an alert never changes a run's outcome.
package notifications
