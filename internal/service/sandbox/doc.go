// Package sandbox implements an in-memory scheduler serving the scheduler
// gRPC API, for running jobctl against localhost:<port>.
//
// Jobs never run: tasks only change state in response to scheduler calls.
// Shards whose configuration has no command fail to start, which makes the
// rollback path of updates reproducible.
package sandbox
