// Package config defines the jobctl settings and provides helpers to load,
// validate and save them in YAML format.
//
// The Config type holds the default cluster reference, the session principal
// and signing key, the cluster directory location, SSH proxy settings and
// RPC timeouts.
package config
