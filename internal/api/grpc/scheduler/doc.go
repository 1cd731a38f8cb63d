// Package scheduler implements the gRPC transport of the scheduler API.
//
// Messages are plain Go structs encoded with a JSON codec registered under the
// "json" content subtype, so the standard protobuf codec stays available for
// the gRPC health service on the same connection. Client speaks the protocol,
// Register exposes a scheduler.Scheduler implementation on a grpc.Server.
package scheduler
