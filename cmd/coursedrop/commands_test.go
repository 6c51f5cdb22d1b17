package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"coursedrop/internal/config"
	"coursedrop/internal/history"
	"coursedrop/internal/server"
	"coursedrop/internal/staging"
	"coursedrop/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("COURSEDROP_NTFY_TOPIC", "")
	cfg := testsupport.NewConfig(t)
	return &cliTestEnv{
		cfg:        cfg,
		configPath: testsupport.WriteConfigFile(t, cfg),
		baseDir:    testsupport.BaseDir(cfg),
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestClassifyCommandReportsDestinations(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "--json", "classify", "Essay 2nd CW.docx", "notes.txt", "Lab 1st.pdf")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	var rows []classifyOutput
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode output: %v (%q)", err, out)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if want := filepath.Join(env.cfg.Paths.CourseworkDir, "2nd", "Essay 2nd CW.docx"); rows[0].Destination != want {
		t.Fatalf("unexpected destination: got %q want %q", rows[0].Destination, want)
	}
	requireContains(t, rows[1].Error, "no valid year")
	requireContains(t, rows[2].Error, "invalid category")

	testsupport.AssertMissing(t, rows[0].Destination)
}

func TestClassifyCommandLeavesFilesystemUntouched(t *testing.T) {
	t.Setenv("COURSEDROP_NTFY_TOPIC", "")
	cfg := testsupport.NewConfig(t, testsupport.WithoutDirectories())
	configPath := testsupport.WriteConfigFile(t, cfg)

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--config", configPath, "classify", "Essay 2nd CW.docx"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("classify: %v", err)
	}
	requireContains(t, stdout.String(), "Essay 2nd CW.docx")

	testsupport.AssertMissing(t, cfg.Paths.CourseworkDir)
	testsupport.AssertMissing(t, cfg.Paths.SelfworkDir)
	testsupport.AssertMissing(t, cfg.Paths.StagingDir)
	testsupport.AssertMissing(t, cfg.Paths.LogDir)
}

func TestPlaceCommandMovesCopyAndRecordsHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	source := filepath.Join(env.baseDir, "downloads", "Report 3rd SW.pdf")
	testsupport.WriteText(t, source, "report body")

	out, _, err := env.run(t, "place", source)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	dest := filepath.Join(env.cfg.Paths.SelfworkDir, "3rd", "Report 3rd SW.pdf")
	requireContains(t, out, "File successfully moved to "+dest)
	if got := testsupport.ReadText(t, dest); got != "report body" {
		t.Fatalf("unexpected destination content %q", got)
	}
	if _, err := os.Stat(source); err != nil {
		t.Fatalf("expected source to be left in place: %v", err)
	}

	out, _, err = env.run(t, "--json", "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var entries []history.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode history: %v (%q)", err, out)
	}
	if len(entries) != 1 || entries[0].Outcome != history.OutcomePlaced || entries[0].Destination != dest {
		t.Fatalf("unexpected history: %+v", entries)
	}
}

func TestPlaceCommandFailsOnUnclassifiableName(t *testing.T) {
	env := setupCLITestEnv(t)
	source := filepath.Join(env.baseDir, "downloads", "notes.txt")
	testsupport.WriteText(t, source, "x")

	out, _, err := env.run(t, "place", "--remove-source", source)
	if err == nil {
		t.Fatal("expected error for unplaceable file")
	}
	requireContains(t, err.Error(), "1 of 1 files could not be placed")
	requireContains(t, out, "Invalid file name")
	if _, statErr := os.Stat(source); statErr != nil {
		t.Fatalf("expected source to survive a failed placement: %v", statErr)
	}
	if got := testsupport.ListNames(t, env.cfg.Paths.StagingDir); got != "notes.txt" {
		t.Fatalf("expected failed upload to stay in staging, got %q", got)
	}

	out, _, err = env.run(t, "history", "--outcome", "rejected")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "notes.txt")

	if _, _, err := env.run(t, "history", "--outcome", "bogus"); err == nil {
		t.Fatal("expected invalid outcome to fail")
	}

	out, _, err = env.run(t, "history", "clear")
	if err != nil {
		t.Fatalf("history clear: %v", err)
	}
	requireContains(t, out, "Removed 1 history entries")
}

func TestStagingListAndClean(t *testing.T) {
	env := setupCLITestEnv(t)
	stale := filepath.Join(env.cfg.Paths.StagingDir, "old 2nd.txt")
	fresh := filepath.Join(env.cfg.Paths.StagingDir, "new 2nd.txt")
	testsupport.WriteText(t, stale, "old")
	testsupport.WriteText(t, fresh, "new")
	past := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(stale, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	out, _, err := env.run(t, "--json", "staging", "list")
	if err != nil {
		t.Fatalf("staging list: %v", err)
	}
	var listing struct {
		Files []staging.FileInfo `json:"files"`
	}
	if err := json.Unmarshal([]byte(out), &listing); err != nil {
		t.Fatalf("decode listing: %v (%q)", err, out)
	}
	if len(listing.Files) != 2 || listing.Files[0].Name != "old 2nd.txt" {
		t.Fatalf("unexpected listing: %+v", listing.Files)
	}

	out, _, err = env.run(t, "staging", "clean")
	if err != nil {
		t.Fatalf("staging clean: %v", err)
	}
	requireContains(t, out, "Removed 1 files")
	testsupport.AssertMissing(t, stale)
	if got := testsupport.ListNames(t, env.cfg.Paths.StagingDir); got != "new 2nd.txt" {
		t.Fatalf("expected fresh file to remain, got %q", got)
	}
}

func TestStatusCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "--json", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status statusOutput
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v (%q)", err, out)
	}
	if status.DaemonRunning {
		t.Fatal("expected daemon to be reported as stopped")
	}
	if status.ConfigPath != env.configPath {
		t.Fatalf("unexpected config path %q", status.ConfigPath)
	}
	if len(status.Preflight) != 10 {
		t.Fatalf("expected 10 preflight checks, got %d", len(status.Preflight))
	}
	for _, check := range status.Preflight {
		if !check.Passed {
			t.Fatalf("expected %s to pass: %s", check.Name, check.Detail)
		}
	}
	if status.History.Total != 0 {
		t.Fatalf("expected empty history, got %+v", status.History)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := env.run(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration to "+target)

	if _, _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init to fail without --overwrite")
	}
	if _, _, err := env.run(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateListsPlacementDirs(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Years: 1st, 2nd, 3rd, 4th")
	requireContains(t, out, filepath.Join(env.cfg.Paths.SelfworkDir, "4th"))
	requireContains(t, out, "Configuration valid")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications not configured")
}

func TestUploadCommandPostsMultipart(t *testing.T) {
	env := setupCLITestEnv(t)
	source := filepath.Join(env.baseDir, "Essay 1st CW.docx")
	testsupport.WriteText(t, source, "essay")

	var gotName, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload" {
			http.Error(w, "unexpected request", http.StatusNotFound)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotName, gotBody = header.Filename, string(data)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(server.UploadResponse{
			Success:     true,
			Message:     "File successfully moved to /srv/CW/1st/Essay 1st CW.docx",
			Destination: "/srv/CW/1st/Essay 1st CW.docx",
			RequestID:   "req-1",
		})
	}))
	defer srv.Close()

	out, _, err := env.run(t, "upload", "--server", srv.URL, source)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if gotName != "Essay 1st CW.docx" || gotBody != "essay" {
		t.Fatalf("server saw name=%q body=%q", gotName, gotBody)
	}
	requireContains(t, out, "File successfully moved to /srv/CW/1st/Essay 1st CW.docx")
}

func TestUploadCommandSurfacesRejection(t *testing.T) {
	env := setupCLITestEnv(t)
	source := filepath.Join(env.baseDir, "notes.txt")
	testsupport.WriteText(t, source, "x")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(server.UploadResponse{
			Message: "Invalid file name: no valid year. Ensure it contains a year and CW/SW.",
			Reason:  "no_year_match",
		})
	}))
	defer srv.Close()

	out, _, err := env.run(t, "upload", "--server", srv.URL, source)
	if err == nil {
		t.Fatal("expected rejection to produce an error")
	}
	requireContains(t, out, "Invalid file name")
}

func TestPostUploadRejectsMalformedServerURL(t *testing.T) {
	env := setupCLITestEnv(t)
	source := filepath.Join(env.baseDir, "Essay 1st CW.docx")
	testsupport.WriteText(t, source, "essay")

	_, err := postUpload(t.Context(), "http://[::1", source)
	if err == nil {
		t.Fatal("expected malformed server URL to fail")
	}
	requireContains(t, err.Error(), "build upload request")
}
