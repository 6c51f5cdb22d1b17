package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"coursedrop/internal/config"
	"coursedrop/internal/history"
	"coursedrop/internal/preflight"
)

type statusOutput struct {
	ConfigPath    string             `json:"config_path"`
	DaemonRunning bool               `json:"daemon_running"`
	Preflight     []preflight.Result `json:"preflight"`
	History       history.Stats      `json:"history"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show directory health and upload counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status := statusOutput{
				ConfigPath:    ctx.configPath,
				DaemonRunning: daemonRunning(cfg),
				Preflight:     preflight.RunAll(cmd.Context(), cfg),
			}
			if err := ctx.withHistory(func(store *history.Store) error {
				stats, err := store.Stats(cmd.Context())
				status.History = stats
				return err
			}); err != nil {
				return err
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, status)
			}
			printStatus(cmd, cfg, status)
			return nil
		},
	}
}

// daemonRunning probes the daemon lock. A lock we can take means nobody
// else holds it.
func daemonRunning(cfg *config.Config) bool {
	lock := flock.New(cfg.LockFilePath())
	locked, err := lock.TryLock()
	if err != nil {
		return false
	}
	if locked {
		_ = lock.Unlock()
		return false
	}
	return true
}

func printStatus(cmd *cobra.Command, cfg *config.Config, status statusOutput) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	lines := renderSectionHeader("System", colorize)
	lines = append(lines, renderStatusLine("Config", statusInfo, status.ConfigPath, colorize))
	if status.DaemonRunning {
		lines = append(lines, renderStatusLine("Daemon", statusOK, "running on "+cfg.Paths.APIBind, colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	lines = append(lines, renderStatusLine("Inbox watcher", statusInfo, yesNo(cfg.Watch.Enabled), colorize))
	lines = append(lines, renderStatusLine("Mirror", statusInfo, yesNo(cfg.Mirror.Enabled), colorize))
	lines = append(lines, renderStatusLine("Notifications", statusInfo, yesNo(cfg.Notifications.NtfyTopic != ""), colorize))

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Directories", colorize)...)
	for _, check := range status.Preflight {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}

	stats := status.History
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Uploads", colorize)...)
	lines = append(lines, renderStatusLine("Placed", statusOK, fmt.Sprintf("%d", stats.Placed), colorize))
	rejectedKind := statusInfo
	if stats.Rejected > 0 {
		rejectedKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Rejected", rejectedKind, fmt.Sprintf("%d", stats.Rejected), colorize))
	if len(stats.ByReason) > 0 {
		lines = append(lines, renderStatusLine("Reasons", statusInfo, formatCounts(stats.ByReason), colorize))
	}
	if len(stats.ByCategory) > 0 {
		lines = append(lines, renderStatusLine("Categories", statusInfo, formatCounts(stats.ByCategory), colorize))
	}
	if stats.LastUpload != nil {
		lines = append(lines, renderStatusLine("Last upload", statusInfo, stats.LastUpload.Local().Format(time.DateTime), colorize))
	}

	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}
