package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSorting(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateMirror(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.CourseworkDir == "" {
		return errors.New("paths.coursework_dir must be set")
	}
	if c.Paths.SelfworkDir == "" {
		return errors.New("paths.selfwork_dir must be set")
	}
	if filepath.Clean(c.Paths.CourseworkDir) == filepath.Clean(c.Paths.SelfworkDir) {
		return errors.New("paths.coursework_dir and paths.selfwork_dir must differ")
	}
	return nil
}

func (c *Config) validateSorting() error {
	if len(c.Sorting.Years) == 0 {
		return errors.New("sorting.years must include at least one year")
	}
	seen := make(map[string]struct{}, len(c.Sorting.Years))
	for _, year := range c.Sorting.Years {
		if year == "" {
			return errors.New("sorting.years must not contain blank entries")
		}
		if strings.ContainsAny(year, `/\`) || year == "." || year == ".." {
			return fmt.Errorf("sorting.years entry %q is not a valid directory name", year)
		}
		if _, dup := seen[year]; dup {
			return fmt.Errorf("sorting.years contains duplicate entry %q", year)
		}
		seen[year] = struct{}{}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.MaxUploadMB < 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	if c.Server.UploadsPerMinute < 0 || c.Server.UploadBurst < 0 {
		return errors.New("server.uploads_per_minute and server.upload_burst must be >= 0")
	}
	if c.Staging.MaxAgeHours < 0 {
		return errors.New("staging.max_age_hours must be positive")
	}
	return nil
}

func (c *Config) validateWatch() error {
	if !c.Watch.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Paths.InboxDir) == "" {
		return errors.New("paths.inbox_dir must be set when watch.enabled is true")
	}
	if filepath.Clean(c.Paths.InboxDir) == filepath.Clean(c.Paths.StagingDir) {
		return errors.New("paths.inbox_dir must differ from paths.staging_dir")
	}
	if c.Watch.DebounceMS < 0 {
		return errors.New("watch.debounce_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateMirror() error {
	if !c.Mirror.Enabled {
		return nil
	}
	if c.Mirror.Endpoint == "" {
		return errors.New("mirror.endpoint must be set when mirror.enabled is true")
	}
	if c.Mirror.Bucket == "" {
		return errors.New("mirror.bucket must be set when mirror.enabled is true")
	}
	if c.Mirror.AccessKey == "" || c.Mirror.SecretKey == "" {
		return errors.New("mirror.access_key and mirror.secret_key must be set when mirror.enabled is true (or set COURSEDROP_S3_ACCESS_KEY/COURSEDROP_S3_SECRET_KEY)")
	}
	return nil
}
