// Package common holds helpers shared by the jobctl commands.
//
// It turns the settings file and command line overrides into a ready
// scheduler client and writes the collected metrics when a command ends.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
