// Package packager uploads a local bundle directory to an umpire server.
//
// The directory carries a bundle.yaml manifest naming the bundle and mapping
// payload types to files next to it. Every payload is stored as a resource
// and the bundle is imported as a new staged config version.
package packager
