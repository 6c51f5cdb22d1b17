package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const entryColumns = `id, request_id, filename, staged_path, destination, year, category,
	outcome, reason, message, size_bytes, created_at`

// Record appends an entry. CreatedAt defaults to now; the assigned id is
// written back into entry.
func (s *Store) Record(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("history: nil entry")
	}
	if entry.Outcome == "" {
		return errors.New("history: entry outcome is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO uploads (request_id, filename, staged_path, destination, year, category,
			outcome, reason, message, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID,
		entry.Filename,
		nullableString(entry.StagedPath),
		nullableString(entry.Destination),
		nullableString(entry.Year),
		nullableString(entry.Category),
		string(entry.Outcome),
		nullableString(entry.Reason),
		nullableString(entry.Message),
		entry.SizeBytes,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("upload id: %w", err)
	}
	entry.ID = id
	return nil
}

// List returns entries newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	ctx = ensureContext(ctx)
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT ` + entryColumns + ` FROM uploads`
	args := make([]any, 0, 2)
	if filter.Outcome != "" {
		query += ` WHERE outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats summarizes outcomes, rejection reasons, and placed categories.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{ByReason: map[string]int{}, ByCategory: map[string]int{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COALESCE(reason, ''), COALESCE(category, ''), COUNT(1)
		 FROM uploads GROUP BY outcome, reason, category`)
	if err != nil {
		return Stats{}, fmt.Errorf("upload stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome, reason, category string
		var count int
		if err := rows.Scan(&outcome, &reason, &category, &count); err != nil {
			return Stats{}, err
		}
		stats.Total += count
		switch Outcome(outcome) {
		case OutcomePlaced:
			stats.Placed += count
			if category != "" {
				stats.ByCategory[category] += count
			}
		case OutcomeRejected:
			stats.Rejected += count
			if reason != "" {
				stats.ByReason[reason] += count
			}
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	var last string
	err = s.db.QueryRowContext(ctx, `SELECT created_at FROM uploads ORDER BY id DESC LIMIT 1`).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Stats{}, fmt.Errorf("last upload: %w", err)
	default:
		ts, err := time.Parse(time.RFC3339Nano, last)
		if err != nil {
			return Stats{}, fmt.Errorf("parse last upload: %w", err)
		}
		stats.LastUpload = &ts
	}
	return stats, nil
}

// Clear removes every entry, or only those with the given outcome.
func (s *Store) Clear(ctx context.Context, outcome Outcome) (int64, error) {
	query := `DELETE FROM uploads`
	var args []any
	if outcome != "" {
		query += ` WHERE outcome = ?`
		args = append(args, string(outcome))
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear uploads: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry                                                Entry
		staged, destination, year, category, reason, message sql.NullString
		outcome, createdAt                                   string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.RequestID,
		&entry.Filename,
		&staged,
		&destination,
		&year,
		&category,
		&outcome,
		&reason,
		&message,
		&entry.SizeBytes,
		&createdAt,
	); err != nil {
		return Entry{}, fmt.Errorf("scan upload: %w", err)
	}
	entry.StagedPath = staged.String
	entry.Destination = destination.String
	entry.Year = year.String
	entry.Category = category.String
	entry.Outcome = Outcome(outcome)
	entry.Reason = reason.String
	entry.Message = message.String
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	entry.CreatedAt = ts
	return entry, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
