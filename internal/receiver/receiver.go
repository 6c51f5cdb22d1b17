package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"coursedrop/internal/classify"
	"coursedrop/internal/config"
	"coursedrop/internal/failure"
	"coursedrop/internal/history"
	"coursedrop/internal/logging"
	"coursedrop/internal/mirror"
	"coursedrop/internal/notifications"
	"coursedrop/internal/placer"
)

// Recorder persists pipeline outcomes.
type Recorder interface {
	Record(ctx context.Context, entry *history.Entry) error
}

// Result is the outcome of one upload attempt.
type Result struct {
	RequestID   string
	Filename    string
	StagedPath  string
	Destination string
	Match       classify.Match
	SizeBytes   int64
	MirrorKey   string
	Err         error
}

// Success reports whether the file reached its destination.
func (r Result) Success() bool {
	return r.Err == nil
}

// Message renders the status line shown to the uploader.
func (r Result) Message() string {
	if r.Err == nil {
		return fmt.Sprintf("File successfully moved to %s", r.Destination)
	}
	return failure.UserMessage(r.Err)
}

// Receiver stages uploads and drives them through placement.
type Receiver struct {
	stagingDir   string
	removeFailed bool
	placer       *placer.Placer
	recorder     Recorder
	notifier     notifications.Service
	mirror       mirror.Mirror
	logger       *slog.Logger
	newID        func() string
}

// Option customizes a Receiver.
type Option func(*Receiver)

// WithRecorder records every outcome in the ledger.
func WithRecorder(rec Recorder) Option {
	return func(r *Receiver) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithNotifier sends placed/rejected notifications.
func WithNotifier(n notifications.Service) Option {
	return func(r *Receiver) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithMirror copies placed files to object storage.
func WithMirror(m mirror.Mirror) Option {
	return func(r *Receiver) {
		if m != nil {
			r.mirror = m
		}
	}
}

// New constructs a receiver writing into cfg.Paths.StagingDir.
func New(cfg *config.Config, p *placer.Placer, logger *slog.Logger, opts ...Option) *Receiver {
	r := &Receiver{
		stagingDir:   cfg.Paths.StagingDir,
		removeFailed: cfg.Staging.RemoveFailed,
		placer:       p,
		logger:       logging.NewComponentLogger(logger, "receiver"),
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Receive stages body under the base name of filename and places it.
func (r *Receiver) Receive(ctx context.Context, filename string, body io.Reader) Result {
	ctx, result := r.begin(ctx, filename)
	logger := logging.WithContext(ctx, r.logger)

	name, err := SanitizeFilename(filename)
	if err != nil {
		result.Err = err
		return r.finish(ctx, result)
	}
	result.Filename = name

	staged, size, err := r.stage(name, body)
	if err != nil {
		logger.Error("failed to stage upload",
			logging.String("filename", name),
			logging.Error(err),
			logging.String(logging.FieldEventType, "staging_failed"),
		)
		result.Err = err
		return r.finish(ctx, result)
	}
	result.StagedPath = staged
	result.SizeBytes = size
	logger.Debug("upload staged", logging.String("path", staged), logging.Int64("size_bytes", size))

	placement, err := r.placer.Place(ctx, staged)
	if err != nil {
		result.Err = err
		r.discardFailed(ctx, staged)
		return r.finish(ctx, result)
	}
	result.Match = placement.Match
	result.Destination = placement.Destination
	return r.finish(ctx, result)
}

// ReceiveFile runs a local file through the pipeline. The source file is
// copied into staging and left untouched.
func (r *Receiver) ReceiveFile(ctx context.Context, sourcePath string) Result {
	file, err := os.Open(sourcePath)
	if err != nil {
		ctx, result := r.begin(ctx, filepath.Base(sourcePath))
		result.Err = fmt.Errorf("open source: %w", err)
		return r.finish(ctx, result)
	}
	defer file.Close()
	return r.Receive(ctx, filepath.Base(sourcePath), file)
}

// Reject records an attempt that failed before any bytes were staged, such as
// a request without a file part.
func (r *Receiver) Reject(ctx context.Context, filename string, cause error) Result {
	ctx, result := r.begin(ctx, filename)
	if cause == nil {
		cause = failure.ErrMissingFilePart
	}
	result.Err = cause
	return r.finish(ctx, result)
}

// SanitizeFilename reduces an uploaded name to its base name. Both slash
// styles count as separators. Empty, "." and ".." names are rejected; a
// whitespace-only name is kept and left for classification to refuse.
func SanitizeFilename(filename string) (string, error) {
	normalized := strings.ReplaceAll(filename, `\`, "/")
	if normalized == "" {
		return "", failure.Wrap(failure.ErrEmptyFilename, "receive", "sanitize", "empty filename", nil)
	}
	base := path.Base(normalized)
	switch base {
	case "", ".", "..", "/":
		return "", failure.Wrap(failure.ErrEmptyFilename, "receive", "sanitize",
			fmt.Sprintf("%q has no usable base name", filename), nil)
	}
	return base, nil
}

func (r *Receiver) begin(ctx context.Context, filename string) (context.Context, Result) {
	if ctx == nil {
		ctx = context.Background()
	}
	id, ok := logging.RequestIDFromContext(ctx)
	if !ok {
		id = r.newID()
		ctx = logging.WithRequestID(ctx, id)
	}
	return ctx, Result{RequestID: id, Filename: filename}
}

// stage writes body to a hidden temp file and renames it over the final
// staging name so a partial upload never replaces an earlier one.
func (r *Receiver) stage(name string, body io.Reader) (string, int64, error) {
	if body == nil {
		return "", 0, failure.Wrap(failure.ErrMissingFilePart, "receive", "stage", "nil body", nil)
	}
	if err := os.MkdirAll(r.stagingDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("ensure staging dir: %w", err)
	}
	tmp, err := os.CreateTemp(r.stagingDir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	size, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("write staging file: %w", err)
	}
	target := filepath.Join(r.stagingDir, name)
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("finalize staging file: %w", err)
	}
	return target, size, nil
}

func (r *Receiver) discardFailed(ctx context.Context, staged string) {
	if !r.removeFailed || staged == "" {
		return
	}
	if err := os.Remove(staged); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "failed to remove unplaced upload", "staging_cleanup_failed",
			logging.String("path", staged),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run coursedrop staging clean"),
			logging.String(logging.FieldImpact, "file remains in staging"),
		)
	}
}

func (r *Receiver) finish(ctx context.Context, result Result) Result {
	logger := logging.WithContext(ctx, r.logger)

	if result.Err == nil {
		r.mirrorPlaced(ctx, &result)
		logger.Info("upload placed",
			logging.String("filename", result.Filename),
			logging.String("destination", result.Destination),
			logging.String(logging.FieldEventType, "upload_completed"),
		)
	} else {
		logger.Info("upload rejected",
			logging.String("filename", result.Filename),
			logging.String("reason", failure.Kind(result.Err)),
			logging.Error(result.Err),
			logging.String(logging.FieldEventType, "upload_rejected"),
		)
	}

	r.record(ctx, result)
	r.notify(ctx, result)
	return result
}

func (r *Receiver) mirrorPlaced(ctx context.Context, result *Result) {
	if r.mirror == nil || !r.mirror.Enabled() {
		return
	}
	key, err := r.mirror.Upload(ctx, result.Match, result.Destination)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "mirror upload failed", "mirror_failed",
			logging.String("destination", result.Destination),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check mirror endpoint and credentials"),
			logging.String(logging.FieldImpact, "file placed locally but not mirrored"),
		)
		return
	}
	result.MirrorKey = key
}

func (r *Receiver) record(ctx context.Context, result Result) {
	if r.recorder == nil {
		return
	}
	entry := &history.Entry{
		RequestID:   result.RequestID,
		Filename:    result.Filename,
		StagedPath:  result.StagedPath,
		Destination: result.Destination,
		Year:        string(result.Match.Year),
		Category:    string(result.Match.Category),
		Outcome:     history.OutcomePlaced,
		Message:     result.Message(),
		SizeBytes:   result.SizeBytes,
	}
	if result.Err != nil {
		entry.Outcome = history.OutcomeRejected
		entry.Reason = failure.Kind(result.Err)
	}
	if err := r.recorder.Record(ctx, entry); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "failed to record upload", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "upload missing from history"),
		)
	}
}

func (r *Receiver) notify(ctx context.Context, result Result) {
	if r.notifier == nil {
		return
	}
	var err error
	if result.Err == nil {
		err = r.notifier.NotifyPlaced(ctx, result.Filename, result.Destination)
	} else {
		err = r.notifier.NotifyRejected(ctx, result.Filename, result.Message())
	}
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "no push notification for this upload"),
		)
	}
}

// NewFromConfig wires a receiver with the placer, notifier, and mirror the
// configuration asks for. rec may be nil to skip the ledger.
func NewFromConfig(cfg *config.Config, rec Recorder, logger *slog.Logger) (*Receiver, error) {
	m, err := mirror.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init mirror: %w", err)
	}
	opts := []Option{
		WithNotifier(notifications.NewService(cfg)),
		WithMirror(m),
	}
	if rec != nil {
		opts = append(opts, WithRecorder(rec))
	}
	return New(cfg, placer.New(cfg, logger), logger, opts...), nil
}
