package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"coursedrop/internal/config"
)

func TestLoadDefaultConfigResolvesAgainstWorkingDirectory(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("COURSEDROP_SECRET_KEY", "")
	workDir := t.TempDir()
	t.Chdir(workDir)
	workDir, _ = os.Getwd()

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if want := filepath.Join(workDir, "static", "uploads"); cfg.Paths.StagingDir != want {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, want)
	}
	if want := filepath.Join(workDir, "CW"); cfg.Paths.CourseworkDir != want {
		t.Fatalf("unexpected coursework dir: got %q want %q", cfg.Paths.CourseworkDir, want)
	}
	if want := filepath.Join(workDir, "SW"); cfg.Paths.SelfworkDir != want {
		t.Fatalf("unexpected selfwork dir: got %q want %q", cfg.Paths.SelfworkDir, want)
	}
	if cfg.Paths.InboxDir != "" {
		t.Fatalf("expected inbox disabled by default, got %q", cfg.Paths.InboxDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:5000" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if strings.Join(cfg.Sorting.Years, ",") != "1st,2nd,3rd,4th" {
		t.Fatalf("unexpected years: %v", cfg.Sorting.Years)
	}
	if cfg.Server.SecretKey == "" {
		t.Fatal("expected generated secret key")
	}
	if cfg.Staging.RemoveFailed {
		t.Fatal("expected failed uploads to stay in staging by default")
	}
	if cfg.Mirror.Enabled {
		t.Fatal("expected mirror disabled by default")
	}
	if cfg.MaxUploadBytes() != 32<<20 {
		t.Fatalf("unexpected upload cap: %d", cfg.MaxUploadBytes())
	}
}

func TestEnsureDirectoriesCreatesCategoryYearTree(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(base, "static", "uploads")
	cfg.Paths.CourseworkDir = filepath.Join(base, "CW")
	cfg.Paths.SelfworkDir = filepath.Join(base, "SW")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for i := 0; i < 2; i++ {
		if err := cfg.EnsureDirectories(); err != nil {
			t.Fatalf("EnsureDirectories (pass %d) failed: %v", i+1, err)
		}
	}

	expected := []string{cfg.Paths.StagingDir, cfg.Paths.LogDir}
	for _, root := range []string{"CW", "SW"} {
		for _, year := range []string{"1st", "2nd", "3rd", "4th"} {
			expected = append(expected, filepath.Join(base, root, year))
		}
	}
	for _, dir := range expected {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
	if got := len(cfg.PlacementDirs()); got != 8 {
		t.Fatalf("expected 8 placement dirs, got %d", got)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "coursedrop.toml")

	type payload struct {
		Paths struct {
			CourseworkDir string `toml:"coursework_dir"`
			InboxDir      string `toml:"inbox_dir"`
		} `toml:"paths"`
		Sorting struct {
			Years []string `toml:"years"`
		} `toml:"sorting"`
		Server struct {
			SecretKey string `toml:"secret_key"`
		} `toml:"server"`
		Watch struct {
			Enabled bool `toml:"enabled"`
		} `toml:"watch"`
	}
	custom := payload{}
	custom.Paths.CourseworkDir = filepath.Join(tempDir, "coursework")
	custom.Paths.InboxDir = filepath.Join(tempDir, "inbox")
	custom.Sorting.Years = []string{" 1st ", "2nd"}
	custom.Server.SecretKey = "from-file"
	custom.Watch.Enabled = true
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.CourseworkDir != custom.Paths.CourseworkDir {
		t.Fatalf("expected coursework dir override, got %q", cfg.Paths.CourseworkDir)
	}
	if strings.Join(cfg.Sorting.Years, ",") != "1st,2nd" {
		t.Fatalf("expected trimmed years, got %v", cfg.Sorting.Years)
	}
	if cfg.Server.SecretKey != "from-file" {
		t.Fatalf("expected secret key from file, got %q", cfg.Server.SecretKey)
	}
	if !cfg.Watch.Enabled || cfg.Paths.InboxDir != custom.Paths.InboxDir {
		t.Fatalf("expected watch enabled on %q, got enabled=%v inbox=%q", custom.Paths.InboxDir, cfg.Watch.Enabled, cfg.Paths.InboxDir)
	}
}

func TestSecretKeyFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("COURSEDROP_SECRET_KEY", "env-secret")
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.SecretKey != "env-secret" {
		t.Fatalf("expected secret key from env, got %q", cfg.Server.SecretKey)
	}
}

func TestValidateRejectsBadSorting(t *testing.T) {
	tests := []struct {
		name  string
		years []string
		want  string
	}{
		{name: "duplicate", years: []string{"1st", "1st"}, want: "duplicate"},
		{name: "blank", years: []string{"1st", ""}, want: "blank"},
		{name: "separator", years: []string{"1st/2nd"}, want: "not a valid directory name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Sorting.Years = tc.years
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error for %v", tc.years)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateMirrorRequiresCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Mirror.Enabled = true
	cfg.Mirror.Endpoint = "localhost:9000"
	cfg.Mirror.Bucket = "coursedrop"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when mirror credentials are missing")
	}
	cfg.Mirror.AccessKey = "access"
	cfg.Mirror.SecretKey = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid mirror config, got %v", err)
	}
}

func TestValidateWatchRequiresInbox(t *testing.T) {
	cfg := config.Default()
	cfg.Watch.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when inbox_dir is unset")
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if len(cfg.Sorting.Years) != 4 {
		t.Fatalf("expected four years from sample, got %v", cfg.Sorting.Years)
	}
}

func TestUploadLimitDefaultsBurst(t *testing.T) {
	cfg := config.Default()
	cfg.Server.UploadsPerMinute = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected negative uploads_per_minute to be rejected")
	}

	path := filepath.Join(t.TempDir(), "limit.toml")
	if err := os.WriteFile(path, []byte("[server]\nsecret_key = \"k\"\nuploads_per_minute = 6\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Chdir(t.TempDir())
	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Server.UploadsPerMinute != 6 || loaded.Server.UploadBurst != 5 {
		t.Fatalf("unexpected limit settings: %+v", loaded.Server)
	}
}

func TestWatchDebounceZeroIsKept(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		return path
	}
	t.Chdir(t.TempDir())

	loaded, _, _, err := config.Load(write("zero.toml", "[server]\nsecret_key = \"k\"\n[watch]\ndebounce_ms = 0\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Watch.DebounceMS != 0 {
		t.Fatalf("expected explicit zero debounce to be kept, got %d", loaded.Watch.DebounceMS)
	}

	loaded, _, _, err = config.Load(write("unset.toml", "[server]\nsecret_key = \"k\"\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Watch.DebounceMS != 500 {
		t.Fatalf("expected default debounce when unset, got %d", loaded.Watch.DebounceMS)
	}
}
