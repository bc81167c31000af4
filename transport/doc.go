// Package transport contains descriptions of the service exposed by
// an overworked server and implementations of clients and frontends
// for different protocols. Every frontend speaks to the same Server,
// so the HTTP and gRPC surfaces route requests identically and report
// errors with equivalent status codes.
package transport
