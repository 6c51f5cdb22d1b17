package testsupport

import (
	"path/filepath"
	"testing"

	"coursedrop/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
	noDirs  bool
}

// NewConfig produces a config seeded with unique temp directories per test.
// The category/year tree is created unless WithoutDirectories is passed.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "static", "uploads")
	cfgVal.Paths.CourseworkDir = filepath.Join(base, "CW")
	cfgVal.Paths.SelfworkDir = filepath.Join(base, "SW")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Server.SecretKey = "test-secret"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if !builder.noDirs {
		if err := builder.cfg.EnsureDirectories(); err != nil {
			t.Fatalf("ensure directories: %v", err)
		}
	}
	return builder.cfg
}

// WithoutDirectories leaves the directory tree uncreated.
func WithoutDirectories() ConfigOption {
	return func(b *configBuilder) {
		b.noDirs = true
	}
}

// WithInbox enables the drop-folder watcher on an inbox under the temp root.
func WithInbox() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.InboxDir = filepath.Join(b.baseDir, "inbox")
		b.cfg.Watch.Enabled = true
		b.cfg.Watch.DebounceMS = 20
	}
}

// WithYears overrides the year tokens.
func WithYears(years ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sorting.Years = append([]string(nil), years...)
	}
}

// WithRemoveFailed toggles deletion of unplaceable staged files.
func WithRemoveFailed(remove bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Staging.RemoveFailed = remove
	}
}

// WithNtfyTopic points notifications at the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithUploadLimit enables per-client upload rate limiting.
func WithUploadLimit(perMinute, burst int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.UploadsPerMinute = perMinute
		b.cfg.Server.UploadBurst = burst
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.CourseworkDir)
}
