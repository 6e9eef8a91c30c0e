// Package preflight provides readiness checks for the binaries, directories,
// job store and graph endpoint graphmem depends on.
//
// "graphmem doctor" runs every check and prints the results. The checks are
// read-only apart from the directories EnsureDirectories creates on start.
package preflight
