// Package metrics holds the prometheus collectors of jobctl.
//
// The CLI writes them to a node-exporter textfile on exit; the sandbox
// scheduler serves them over HTTP.
package metrics
