package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/blackmichael/skystats/internal/domain"
)

const defaultListLimit = 20

// Repository implements domain.ReportRepository and domain.CursorRepository
// using SQLite.
type Repository struct {
	db *sql.DB
}

var (
	_ domain.ReportRepository = (*Repository)(nil)
	_ domain.CursorRepository = (*Repository)(nil)
)

// NewRepository opens (creating if needed) the SQLite database at path and
// applies the schema. The caller should call Close when the repository is no
// longer needed. Use ":memory:" for a throwaway database.
func NewRepository(ctx context.Context, path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer, and every connection to ":memory:" is a
	// separate database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveReport inserts a report summary, assigning an ID and generation time
// when they are unset.
func (r *Repository) SaveReport(ctx context.Context, s *domain.ReportSummary) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.GeneratedAt.IsZero() {
		s.GeneratedAt = time.Now().UTC()
	}
	stats := s.Stats
	if len(stats) == 0 {
		stats = json.RawMessage("{}")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reports (id, did, handle, generated_at, feed_cursor, posts_analyzed, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.DID,
		s.Handle,
		s.GeneratedAt.UnixMilli(),
		s.FeedCursor,
		s.PostsAnalyzed,
		string(stats),
	)
	if err != nil {
		return fmt.Errorf("insert report %s: %w", s.ID, err)
	}
	return nil
}

// ListReports retrieves report summaries for a DID, newest first.
// The cursor format is "generatedAt::id" (unix millis::id).
func (r *Repository) ListReports(ctx context.Context, did string, limit int, cursor string) ([]domain.ReportSummary, string, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		rows *sql.Rows
		err  error
	)

	if cursor != "" {
		cursorTime, cursorID, parseErr := parseCursor(cursor)
		if parseErr != nil {
			return nil, "", fmt.Errorf("invalid cursor '%s': %w", cursor, parseErr)
		}

		rows, err = r.db.QueryContext(ctx, `
			SELECT id, did, handle, generated_at, feed_cursor, posts_analyzed, stats
			FROM reports
			WHERE did = ? AND (generated_at, id) < (?, ?)
			ORDER BY generated_at DESC, id DESC
			LIMIT ?`,
			did, cursorTime.UnixMilli(), cursorID, limit,
		)
		if err != nil {
			return nil, "", fmt.Errorf("query reports with cursor (time=%v, id=%s, limit=%d): %w", cursorTime, cursorID, limit, err)
		}
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT id, did, handle, generated_at, feed_cursor, posts_analyzed, stats
			FROM reports
			WHERE did = ?
			ORDER BY generated_at DESC, id DESC
			LIMIT ?`,
			did, limit,
		)
		if err != nil {
			return nil, "", fmt.Errorf("query reports without cursor (limit=%d): %w", limit, err)
		}
	}
	defer rows.Close()

	summaries := make([]domain.ReportSummary, 0, limit)
	for rows.Next() {
		var (
			s           domain.ReportSummary
			generatedAt int64
			stats       string
		)
		err := rows.Scan(
			&s.ID,
			&s.DID,
			&s.Handle,
			&generatedAt,
			&s.FeedCursor,
			&s.PostsAnalyzed,
			&stats,
		)
		if err != nil {
			return nil, "", fmt.Errorf("scan report: %w", err)
		}
		s.GeneratedAt = time.UnixMilli(generatedAt).UTC()
		s.Stats = json.RawMessage(stats)
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate reports: %w", err)
	}

	var nextCursor string
	if len(summaries) == limit {
		last := summaries[len(summaries)-1]
		nextCursor = fmt.Sprintf("%d::%s", last.GeneratedAt.UnixMilli(), last.ID)
	}

	return summaries, nextCursor, nil
}

// DeleteOldReports removes reports older than maxAge and any excess rows
// beyond maxRows, keeping the most recent reports. A non-positive maxAge or
// maxRows disables that bound. Returns the total number of rows deleted.
func (r *Repository) DeleteOldReports(ctx context.Context, maxAge time.Duration, maxRows int) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var deleted int64
	if maxAge > 0 {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM reports WHERE generated_at < ?`,
			time.Now().UTC().Add(-maxAge).UnixMilli(),
		)
		if err != nil {
			return 0, fmt.Errorf("delete expired reports: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}

	if maxRows > 0 {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM reports WHERE id IN (
				SELECT id FROM reports
				ORDER BY generated_at DESC, id DESC
				LIMIT -1 OFFSET ?
			)`, maxRows,
		)
		if err != nil {
			return 0, fmt.Errorf("delete excess reports: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return deleted, nil
}

// GetCursor retrieves the saved author feed cursor for a DID.
func (r *Repository) GetCursor(ctx context.Context, did string) (string, error) {
	var cursor string
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE did = ?`, did,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cursor for %s: %w", did, err)
	}
	return cursor, nil
}

// UpdateCursor upserts the author feed cursor for a DID.
func (r *Repository) UpdateCursor(ctx context.Context, did, cursor string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (did, cursor_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (did) DO UPDATE SET cursor_value = excluded.cursor_value, updated_at = excluded.updated_at`,
		did, cursor, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("update cursor for %s: %w", did, err)
	}
	return nil
}

func parseCursor(cursor string) (time.Time, string, error) {
	parts := strings.SplitN(cursor, "::", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("cursor must be in format 'timestamp::id'")
	}
	millis, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid timestamp in cursor: %w", err)
	}
	return time.UnixMilli(millis), parts[1], nil
}
