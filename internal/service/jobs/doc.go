// Package jobs implements the jobctl subcommands on top of the scheduler client.
//
// Every command prints its result to Options.Out and fails when the scheduler
// did not answer OK, so that scripts can rely on the exit status.
package jobs
