// Package staging inspects and prunes the upload staging directory.
//
// Files that could not be placed stay in staging until an operator clears
// them; CleanStale is the opt-in cleanup for that backlog.
package staging
