// Package cluster resolves logical cluster names.
//
// A Directory is loaded from YAML and knows, for every cluster, the scheduler
// address, the shared filesystem root and the optional SSH proxy host.
// ParseReference validates a "name[:port]" cluster reference against it.
package cluster
