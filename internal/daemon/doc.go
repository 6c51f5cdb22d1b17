// Package daemon coordinates the long-running coursedrop process.
//
// It wires configuration, the history ledger, the upload pipeline, the HTTP
// server, and the optional inbox watcher into a single lifecycle with
// flock-based locking to prevent multiple instances against the same log
// directory.
package daemon
