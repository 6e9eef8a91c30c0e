// Package intake turns user-supplied sources into job records.
//
// Channels are expanded into one URL job per video through a ChannelLister,
// skipping shorts. Video URLs are keyed by their YouTube id when one can be
// derived, local files by their stem. Registration goes through
// queue.JobStore.PutIfAbsent, so repeating an intake is a no-op.
package intake
