package preflight

import (
	"context"
	"fmt"

	"coursedrop/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Watch.Enabled {
		results = append(results, CheckDirectoryAccess("Inbox directory", cfg.Paths.InboxDir))
	}
	for _, root := range []struct{ token, dir string }{
		{config.CategoryCoursework, cfg.Paths.CourseworkDir},
		{config.CategorySelfwork, cfg.Paths.SelfworkDir},
	} {
		for _, year := range cfg.Sorting.Years {
			name := fmt.Sprintf("%s/%s", root.token, year)
			results = append(results, CheckDirectoryAccess(name, joinYear(root.dir, year)))
		}
	}
	if cfg.Mirror.Enabled {
		results = append(results, CheckMirror(ctx, cfg))
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
