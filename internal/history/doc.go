// Package history persists a ledger of every upload attempt in SQLite.
//
// Each row records the request id, filename, outcome (placed or rejected),
// and either the destination or the rejection reason. The ledger lives next
// to the log file so `coursedrop history` can read it without the daemon.
package history
