// Package connection turns a validated cluster reference into a live
// scheduler connection.
//
// A Manager resolves the reference at most once, on first use, and hands out
// the resulting Handle: the scheduler RPC client and, for clusters behind an
// SSH proxy, the proxy through which both RPC traffic and filesystem commands
// travel.
package connection
