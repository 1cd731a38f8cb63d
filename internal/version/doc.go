// Package version exposes build metadata for the jobctl binaries.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. The user agent sent to schedulers is derived from them.
package version
