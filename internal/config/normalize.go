package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSorting()
	if err := c.normalizeServer(); err != nil {
		return err
	}
	c.normalizeStaging()
	c.normalizeNotifications()
	c.normalizeMirror()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(strings.TrimSpace(c.Paths.StagingDir)); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.CourseworkDir, err = expandPath(strings.TrimSpace(c.Paths.CourseworkDir)); err != nil {
		return fmt.Errorf("paths.coursework_dir: %w", err)
	}
	if c.Paths.SelfworkDir, err = expandPath(strings.TrimSpace(c.Paths.SelfworkDir)); err != nil {
		return fmt.Errorf("paths.selfwork_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.InboxDir, err = expandPath(strings.TrimSpace(c.Paths.InboxDir)); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeSorting() {
	if len(c.Sorting.Years) == 0 {
		c.Sorting.Years = DefaultYears()
		return
	}
	years := make([]string, 0, len(c.Sorting.Years))
	for _, year := range c.Sorting.Years {
		years = append(years, strings.TrimSpace(year))
	}
	c.Sorting.Years = years
}

func (c *Config) normalizeServer() error {
	c.Server.SecretKey = strings.TrimSpace(c.Server.SecretKey)
	if c.Server.SecretKey == "" {
		if value, ok := os.LookupEnv("COURSEDROP_SECRET_KEY"); ok {
			c.Server.SecretKey = strings.TrimSpace(value)
		}
	}
	if c.Server.SecretKey == "" {
		key, err := randomKey()
		if err != nil {
			return fmt.Errorf("server.secret_key: %w", err)
		}
		c.Server.SecretKey = key
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
	if c.Server.UploadsPerMinute > 0 && c.Server.UploadBurst == 0 {
		c.Server.UploadBurst = defaultUploadBurst
	}
	return nil
}

func (c *Config) normalizeStaging() {
	if c.Staging.MaxAgeHours == 0 {
		c.Staging.MaxAgeHours = defaultStagingMaxAgeHours
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("COURSEDROP_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeMirror() {
	c.Mirror.Endpoint = strings.TrimSpace(c.Mirror.Endpoint)
	c.Mirror.Bucket = strings.TrimSpace(c.Mirror.Bucket)
	c.Mirror.Region = strings.TrimSpace(c.Mirror.Region)
	if c.Mirror.Region == "" {
		c.Mirror.Region = defaultMirrorRegion
	}
	c.Mirror.AccessKey = firstNonEmpty(
		strings.TrimSpace(c.Mirror.AccessKey),
		lookupTrimmed("COURSEDROP_S3_ACCESS_KEY"),
		lookupTrimmed("MINIO_ROOT_USER"),
	)
	c.Mirror.SecretKey = firstNonEmpty(
		strings.TrimSpace(c.Mirror.SecretKey),
		lookupTrimmed("COURSEDROP_S3_SECRET_KEY"),
		lookupTrimmed("MINIO_ROOT_PASSWORD"),
	)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupTrimmed(key string) string {
	value, _ := os.LookupEnv(key)
	return strings.TrimSpace(value)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func randomKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
