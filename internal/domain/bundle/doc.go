// Package bundle defines the domain model of the deployment server: bundles
// of payload resources, versioned config documents, deployment records and
// build tasks. It carries no I/O; persistence lives in the repository
// packages and orchestration in the services.
package bundle
