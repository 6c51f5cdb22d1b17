package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"coursedrop/internal/config"
	"coursedrop/internal/history"
	"coursedrop/internal/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	jsonFlag     *bool

	loadOnce   sync.Once
	ensureOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		jsonFlag:     jsonFlag,
	}
}

// loadConfig reads configuration without touching the filesystem layout.
func (c *commandContext) loadConfig() (*config.Config, error) {
	c.loadOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// ensureConfig loads configuration and creates the configured directories.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	c.ensureOnce.Do(func() {
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
		}
	})
	if c.configErr != nil {
		return nil, c.configErr
	}
	return cfg, nil
}

func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.logLevelFlag)
}

// commandLogger writes to stderr so command output on stdout stays clean.
// Offline commands default to warn; --log-level overrides.
func (c *commandContext) commandLogger(cfg *config.Config) (*slog.Logger, error) {
	level := c.logLevel()
	if level == "" {
		level = "warn"
	}
	format := "console"
	if cfg != nil {
		format = cfg.Logging.Format
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      format,
		OutputPaths: []string{"stderr"},
	})
}

func (c *commandContext) withHistory(fn func(*history.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("open upload history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
