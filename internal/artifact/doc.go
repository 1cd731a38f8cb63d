// Package artifact publishes application artifacts to a cluster's shared
// filesystem.
//
// Filesystem commands run through a Runner: locally, or on the SSH proxy host
// when the cluster is only reachable through one. In the proxied case the
// artifact is first staged in the remote home directory.
package artifact
