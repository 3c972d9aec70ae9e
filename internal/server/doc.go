// Package server implements the core of the Roomcast chat service: the
// broadcast hub that owns the append-only message log, the connection
// registry, the per-connection session pumps, and the HTTP surface (the
// WebSocket endpoint plus a REST adapter over the same log).
//
// The implementation is organized into specialized files for configuration,
// hub management, sessions, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
