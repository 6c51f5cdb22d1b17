package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir    string `toml:"staging_dir"`
	CourseworkDir string `toml:"coursework_dir"`
	SelfworkDir   string `toml:"selfwork_dir"`
	LogDir        string `toml:"log_dir"`
	InboxDir      string `toml:"inbox_dir"`
	APIBind       string `toml:"api_bind"`
}

// Sorting contains the filename tokens used to place uploads.
type Sorting struct {
	// Years lists the year tokens in scan order. The first token found in a
	// filename wins.
	Years []string `toml:"years"`
}

// Server contains HTTP surface settings.
type Server struct {
	SecretKey   string `toml:"secret_key"`
	MaxUploadMB int    `toml:"max_upload_mb"`

	// UploadsPerMinute caps uploads per client address. 0 disables the limit.
	UploadsPerMinute int `toml:"uploads_per_minute"`
	UploadBurst      int `toml:"upload_burst"`
}

// Staging contains staging directory retention settings.
type Staging struct {
	RemoveFailed bool `toml:"remove_failed"`
	MaxAgeHours  int  `toml:"max_age_hours"`
}

// Watch contains configuration for the inbox drop folder.
type Watch struct {
	Enabled    bool `toml:"enabled"`
	DebounceMS int  `toml:"debounce_ms"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Placed         bool   `toml:"placed"`
	Rejected       bool   `toml:"rejected"`
}

// Mirror contains configuration for copying placed files to object storage.
type Mirror struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for coursedrop.
//
// Configuration sections by subsystem:
//   - Paths: staging, category roots, logs, inbox, and API bind address
//   - Sorting: year tokens recognized in filenames
//   - Server: flash signing key and upload size cap
//   - Staging: what happens to files that cannot be placed
//   - Watch: inbox drop-folder ingestion
//   - Notifications: ntfy push notification settings
//   - Mirror: object storage copy of placed files
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Sorting       Sorting       `toml:"sorting"`
	Server        Server        `toml:"server"`
	Staging       Staging       `toml:"staging"`
	Watch         Watch         `toml:"watch"`
	Notifications Notifications `toml:"notifications"`
	Mirror        Mirror        `toml:"mirror"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("coursedrop.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// CategoryRoots maps each category token to its root directory.
func (c *Config) CategoryRoots() map[string]string {
	return map[string]string{
		CategoryCoursework: c.Paths.CourseworkDir,
		CategorySelfwork:   c.Paths.SelfworkDir,
	}
}

// PlacementDirs returns every (category root, year) directory in category then year order.
func (c *Config) PlacementDirs() []string {
	dirs := make([]string, 0, 2*len(c.Sorting.Years))
	for _, root := range []string{c.Paths.CourseworkDir, c.Paths.SelfworkDir} {
		for _, year := range c.Sorting.Years {
			dirs = append(dirs, filepath.Join(root, year))
		}
	}
	return dirs
}

// EnsureDirectories creates the staging, log, and inbox directories plus every
// category/year destination. Existing directories are left untouched and
// nothing is ever removed.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StagingDir, c.Paths.LogDir}
	if strings.TrimSpace(c.Paths.InboxDir) != "" {
		dirs = append(dirs, c.Paths.InboxDir)
	}
	dirs = append(dirs, c.PlacementDirs()...)
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogFilePath returns the path of the persistent log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "coursedrop.log")
}

// HistoryDBPath returns the path of the upload ledger database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.LogDir, "history.db")
}

// LockFilePath returns the path of the single-instance lock file.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.LogDir, "coursedrop.lock")
}

// MaxUploadBytes returns the request body cap for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
