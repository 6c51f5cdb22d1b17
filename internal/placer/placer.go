package placer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"coursedrop/internal/classify"
	"coursedrop/internal/config"
	"coursedrop/internal/failure"
	"coursedrop/internal/logging"
)

var renameFile = os.Rename

// Placement describes a completed move.
type Placement struct {
	Match       classify.Match
	Source      string
	Destination string
	// Copied is set when the move crossed filesystems and fell back to copy+remove.
	Copied bool
}

// Placer classifies staged files and moves them into the destination tree.
type Placer struct {
	classifier *classify.Classifier
	roots      map[classify.Category]string
	logger     *slog.Logger
}

// New constructs a placer for the configured roots and year tokens.
func New(cfg *config.Config, logger *slog.Logger) *Placer {
	roots := make(map[classify.Category]string, 2)
	for token, dir := range cfg.CategoryRoots() {
		roots[classify.Category(token)] = dir
	}
	return &Placer{
		classifier: classify.New(cfg.Sorting.Years),
		roots:      roots,
		logger:     logging.NewComponentLogger(logger, "placer"),
	}
}

// Resolve classifies filename and returns the destination path it would be
// moved to. It does not touch the filesystem.
func (p *Placer) Resolve(filename string) (classify.Match, string, error) {
	name := filepath.Base(filename)
	match, err := p.classifier.Classify(name)
	if err != nil {
		return classify.Match{}, "", err
	}
	root, ok := p.roots[match.Category]
	if !ok || strings.TrimSpace(root) == "" {
		return match, "", failure.Wrap(failure.ErrDestinationMissing, "placing", "resolve root",
			fmt.Sprintf("no root configured for %s", match.Category), nil)
	}
	return match, filepath.Join(root, string(match.Year), name), nil
}

// Place moves the staged file at stagedPath into root(category)/year/filename.
// On any failure the staged file is left where it is.
func (p *Placer) Place(ctx context.Context, stagedPath string) (Placement, error) {
	logger := logging.WithContext(ctx, p.logger)
	name := filepath.Base(stagedPath)
	logger.Debug("organizing file", logging.String("filename", name))

	match, destination, err := p.Resolve(name)
	if err != nil {
		logger.Info("file not placed",
			logging.String("filename", name),
			logging.String("reason", failure.Kind(err)),
		)
		return Placement{}, err
	}
	logger.Debug("classified upload",
		logging.String("year", string(match.Year)),
		logging.String("category", string(match.Category)),
		logging.String("destination", destination),
	)

	destDir := filepath.Dir(destination)
	info, statErr := os.Stat(destDir)
	if statErr != nil || !info.IsDir() {
		logging.WarnWithContext(logger, "destination directory missing", "destination_missing",
			logging.String("destination_dir", destDir),
			logging.String(logging.FieldErrorHint, "restart coursedrop to recreate the category tree"),
			logging.String(logging.FieldImpact, "upload left in staging"),
		)
		return Placement{}, failure.Wrap(failure.ErrDestinationMissing, "placing", "check destination", destDir, statErr)
	}

	copied, err := p.move(ctx, stagedPath, destination)
	if err != nil {
		logger.Error("move failed",
			logging.String("source", stagedPath),
			logging.String("destination", destination),
			logging.Error(err),
			logging.String(logging.FieldEventType, "move_failed"),
		)
		return Placement{}, err
	}

	logger.Info("file placed",
		logging.String("filename", name),
		logging.String("destination", destination),
		logging.Bool("copied", copied),
		logging.String(logging.FieldEventType, "upload_placed"),
	)
	return Placement{Match: match, Source: stagedPath, Destination: destination, Copied: copied}, nil
}

func (p *Placer) move(ctx context.Context, src, dst string) (bool, error) {
	renameErr := renameFile(src, dst)
	if renameErr == nil {
		return false, nil
	}
	if !isCrossDevice(renameErr) {
		return false, failure.Wrap(failure.ErrMoveFailed, "placing", "rename", filepath.Base(dst), renameErr)
	}
	if err := copyFile(src, dst); err != nil {
		return false, failure.Wrap(failure.ErrMoveFailed, "placing", "copy across devices", filepath.Base(dst), err)
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "failed to remove staged file after copy", "staging_cleanup_failed",
			logging.String("source", src),
			logging.Error(err),
			logging.String(logging.FieldImpact, "duplicate copy remains in staging"),
		)
	}
	return true, nil
}
