// Package umpire is the gRPC transport for the umpire server.
//
// Messages are built from protobuf well-known types (structpb, wrapperspb,
// emptypb) so the package needs no protoc/codegen toolchain; grpc.go holds
// the hand-written service scaffolding and types.go the conversions between
// domain objects and their wire form.
package umpire
