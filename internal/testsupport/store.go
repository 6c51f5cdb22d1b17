package testsupport

import (
	"context"
	"testing"

	"coursedrop/internal/config"
	"coursedrop/internal/history"
)

// MustOpenHistory opens the upload ledger for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustListHistory returns every ledger entry, newest first.
func MustListHistory(t testing.TB, store *history.Store) []history.Entry {
	t.Helper()

	entries, err := store.List(context.Background(), history.Filter{Limit: 1000})
	if err != nil {
		t.Fatalf("store.List: %v", err)
	}
	return entries
}
