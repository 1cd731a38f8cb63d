// Package state implements persistence for the sandbox scheduler state.
//
// The FileRepository stores and loads the state as YAML on disk and exposes a
// Repository interface that the sandbox service depends on.
package state
