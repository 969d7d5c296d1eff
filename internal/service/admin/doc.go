// Package admin implements the operator-facing commands of umpire-admin.
//
// Every command is a thin session around the gRPC client: dial, perform one
// operation, print the outcome. Mutating commands stamp the detected system
// actor into the server's audit trail.
package admin
