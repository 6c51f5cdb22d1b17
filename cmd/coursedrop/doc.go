// Package main hosts the coursedrop CLI entrypoint and command graph.
//
// `coursedrop serve` runs the upload server and inbox watcher. The remaining
// commands operate on the same configuration offline: placing local files,
// dry-running classification, reading the upload ledger, inspecting staging,
// and scaffolding configuration. `upload` is the only command that talks to a
// running server.
package main
