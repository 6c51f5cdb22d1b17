// Package watcher feeds files dropped into the inbox directory through the
// upload pipeline.
//
// Create and write events are debounced per path so a file still being
// copied is only picked up once it settles. Files already present when the
// watcher starts are processed first. Once a file has been staged it is
// removed from the inbox, whether or not it could be placed.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"coursedrop/internal/logging"
	"coursedrop/internal/receiver"
)

const defaultDebounce = 500 * time.Millisecond

// Ingester runs a local file through the upload pipeline.
type Ingester interface {
	ReceiveFile(ctx context.Context, sourcePath string) receiver.Result
}

// Watcher monitors an inbox directory.
type Watcher struct {
	dir      string
	debounce time.Duration
	ingester Ingester
	logger   *slog.Logger

	wg sync.WaitGroup
}

// New creates a watcher for dir. A zero debounce ingests on the first event;
// a negative one uses the default.
func New(dir string, debounce time.Duration, ingester Ingester, logger *slog.Logger) (*Watcher, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("inbox directory is required")
	}
	if ingester == nil {
		return nil, errors.New("ingester is required")
	}
	if debounce < 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		ingester: ingester,
		logger:   logging.NewComponentLogger(logger, "watcher"),
	}, nil
}

// Run processes existing files and then watches for new ones. It blocks
// until ctx is cancelled and in-flight files have finished.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("ensure inbox: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}

	w.scanExisting(ctx)
	w.logger.Info("watching inbox",
		logging.String("dir", w.dir),
		logging.Duration("debounce", w.debounce),
		logging.String(logging.FieldEventType, "watcher_started"),
	)

	var mu sync.Mutex
	pending := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for path, t := range pending {
			if t.Stop() {
				w.wg.Done()
			}
			delete(pending, path)
		}
		mu.Unlock()
		w.wg.Wait()
		w.logger.Info("inbox watcher stopped", logging.String(logging.FieldEventType, "watcher_stopped"))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isCandidate(filepath.Base(event.Name)) {
				continue
			}

			path := event.Name
			mu.Lock()
			if t, exists := pending[path]; exists && t.Stop() {
				w.wg.Done()
			}
			w.wg.Add(1)
			pending[path] = time.AfterFunc(w.debounce, func() {
				defer w.wg.Done()
				mu.Lock()
				delete(pending, path)
				mu.Unlock()
				w.process(ctx, path)
			})
			mu.Unlock()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "inbox watcher error", "watcher_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some inbox events may be missed until restart"),
			)
		}
	}
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.WarnWithContext(w.logger, "failed to scan inbox", "watcher_scan_failed",
			logging.String("dir", w.dir),
			logging.Error(err),
		)
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if !entry.Type().IsRegular() || !isCandidate(entry.Name()) {
			continue
		}
		w.process(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	result := w.ingester.ReceiveFile(ctx, path)
	logger := logging.WithContext(logging.WithRequestID(ctx, result.RequestID), w.logger)
	if result.StagedPath == "" {
		logging.WarnWithContext(logger, "inbox file could not be staged", "inbox_stage_failed",
			logging.String("path", path),
			logging.Error(result.Err),
			logging.String(logging.FieldImpact, "file left in inbox"),
		)
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(logger, "failed to remove ingested inbox file", "inbox_cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "file will be ingested again on restart"),
		)
	}
	logger.Debug("inbox file ingested",
		logging.String("path", path),
		logging.Bool("placed", result.Success()),
	)
}

// isCandidate skips hidden files and editor/partial-download leftovers.
func isCandidate(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	for _, suffix := range []string{".part", ".crdownload", ".tmp"} {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	return true
}
