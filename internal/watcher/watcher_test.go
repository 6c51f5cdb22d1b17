package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"coursedrop/internal/logging"
	"coursedrop/internal/receiver"
)

type recordingIngester struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingIngester) ReceiveFile(_ context.Context, path string) receiver.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, filepath.Base(path))
	return receiver.Result{RequestID: "test", Filename: filepath.Base(path), StagedPath: "/staging/" + filepath.Base(path)}
}

func (r *recordingIngester) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcherIngestsExistingAndNewFiles(t *testing.T) {
	inbox := t.TempDir()
	if err := os.WriteFile(filepath.Join(inbox, "early_1st_CW.txt"), []byte("a"), 0o644); err != nil {
		t.Fatalf("write existing: %v", err)
	}
	if err := os.WriteFile(filepath.Join(inbox, ".hidden_1st_CW.txt"), []byte("a"), 0o644); err != nil {
		t.Fatalf("write hidden: %v", err)
	}

	ingester := &recordingIngester{}
	w, err := New(inbox, 20*time.Millisecond, ingester, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool { return len(ingester.seen()) == 1 })
	if _, err := os.Stat(filepath.Join(inbox, "early_1st_CW.txt")); !os.IsNotExist(err) {
		t.Fatal("expected existing file removed from inbox after staging")
	}

	if err := os.WriteFile(filepath.Join(inbox, "late_2nd_SW.txt"), []byte("b"), 0o644); err != nil {
		t.Fatalf("write new: %v", err)
	}
	waitFor(t, func() bool { return len(ingester.seen()) == 2 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}

	names := ingester.seen()
	if names[0] != "early_1st_CW.txt" || names[1] != "late_2nd_SW.txt" {
		t.Fatalf("unexpected ingestion order: %v", names)
	}
	if _, err := os.Stat(filepath.Join(inbox, ".hidden_1st_CW.txt")); err != nil {
		t.Fatalf("expected hidden file untouched: %v", err)
	}
}

func TestIsCandidate(t *testing.T) {
	tests := map[string]bool{
		"essay_2nd_CW.docx":      true,
		".essay_2nd_CW.docx":     false,
		"essay_2nd_CW.docx~":     false,
		"essay_2nd_CW.docx.part": false,
		"download.crdownload":    false,
		"":                       false,
	}
	for name, want := range tests {
		if got := isCandidate(name); got != want {
			t.Fatalf("isCandidate(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New("", time.Second, &recordingIngester{}, nil); err == nil {
		t.Fatal("expected error for empty dir")
	}
	if _, err := New(t.TempDir(), time.Second, nil, nil); err == nil {
		t.Fatal("expected error for nil ingester")
	}
}
