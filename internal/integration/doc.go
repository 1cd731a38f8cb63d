// Package integration runs jobctl against a real sandbox scheduler over gRPC.
package integration
