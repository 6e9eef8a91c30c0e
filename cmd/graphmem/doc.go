// Package main hosts the graphmem CLI entrypoint and command graph.
//
// The Cobra command tree registers sources, runs pipeline stages against the
// job store, and exposes the operator surface: status, failure listings,
// retry, the scheduled watch loop and environment diagnostics. Configuration
// resolution, store access, logger setup and collaborator wiring are
// centralized in the command context so subcommands stay declarative.
//
// Add behaviour to the internal packages first and surface it here through a
// dedicated command or flag.
package main
