// Package scheduler defines the remote scheduler API consumed by jobctl.
//
// Every call takes a request message and returns a reply whose embedded
// job.Response carries the response code and message. Privileged requests
// carry the session credential of the caller.
package scheduler
