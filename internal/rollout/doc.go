// Package rollout defines the shard rollout stepper used by job updates.
//
// The orchestrator builds one Stepper per update cycle through a Factory and
// receives the set of shards that could not be updated. SingleBatch is the
// simplest possible stepper: it updates every shard at once, watches them for
// a fixed period and rolls back the ones that are not running.
package rollout
