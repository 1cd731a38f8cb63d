// Package client is the entry point for talking to a cluster scheduler.
//
// A Client is bound to one cluster. It signs a session and connects to the
// scheduler lazily, on the first operation that needs them, and reuses both
// until Close. A Client must not be used from several goroutines at once.
package client
