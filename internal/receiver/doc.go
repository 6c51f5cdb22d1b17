// Package receiver implements the upload pipeline entry point.
//
// A Receiver stages an incoming file under its base name, hands it to the
// placer, then records the outcome in the history ledger, sends notifications,
// and mirrors placed files. Every attempt gets a request id that is stamped on
// its log lines and its ledger row. Nothing here is fatal: the outcome is
// always returned as a Result for the HTTP, CLI, or watcher caller to render.
package receiver
