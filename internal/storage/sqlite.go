package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"feed_notifier/internal/model"
	"feed_notifier/migrations"
)

const seenTable = "seen_entries"

var seenColumns = []string{"tag", "id", "updated", "url", "title"}

// SQLite implements Storage backed by a SQLite database.
// The tag is stored in a column and always bound as a parameter.
type SQLite struct {
	db        *sql.DB
	existsSQL string
	insertSQL string
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	existsSQL, _, err := sq.Select("1").
		From(seenTable).
		Where(sq.And{sq.Eq{"tag": ""}, sq.Eq{"id": ""}, sq.Eq{"updated": ""}}).
		Limit(1).
		ToSql()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("build exists query: %w", err)
	}

	insertSQL, _, err := sq.Insert(seenTable).
		Columns(seenColumns...).
		Values(make([]any, len(seenColumns))...).
		ToSql()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("build insert query: %w", err)
	}

	return &SQLite{db: db, existsSQL: existsSQL, insertSQL: insertSQL}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Unseen filters bucket down to entries without a seen record. A version
// listed more than once is kept at its first position only.
func (s *SQLite) Unseen(ctx context.Context, bucket model.TagBucket) (model.TagBucket, error) {
	out := model.TagBucket{Tag: bucket.Tag, Entries: []model.FeedEntry{}}
	if bucket.Empty() {
		return out, nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return model.TagBucket{}, &StoreError{Op: "connect", Tag: bucket.Tag, Err: err}
	}
	defer func() { _ = conn.Close() }()

	stmt, err := conn.PrepareContext(ctx, s.existsSQL)
	if err != nil {
		return model.TagBucket{}, &StoreError{Op: "prepare exists", Tag: bucket.Tag, Err: err}
	}
	defer func() { _ = stmt.Close() }()

	type version struct{ id, updated string }
	kept := make(map[version]bool, len(bucket.Entries))

	for _, e := range bucket.Entries {
		v := version{e.ID, e.Updated}
		if kept[v] {
			continue
		}

		var one int
		err := stmt.QueryRowContext(ctx, bucket.Tag, e.ID, e.Updated).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			kept[v] = true
			out.Entries = append(out.Entries, e)
		case err != nil:
			return model.TagBucket{}, &StoreError{Op: "query", Tag: bucket.Tag, Err: fmt.Errorf("entry %q: %w", e.ID, err)}
		}
	}
	return out, nil
}

// Save inserts every entry of bucket in a single transaction.
// On any failure nothing from the bucket is persisted.
func (s *SQLite) Save(ctx context.Context, bucket model.TagBucket) error {
	if bucket.Empty() {
		return nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return &StoreError{Op: "connect", Tag: bucket.Tag, Err: err}
	}
	defer func() { _ = conn.Close() }()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "begin", Tag: bucket.Tag, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.insertSQL)
	if err != nil {
		return &StoreError{Op: "prepare insert", Tag: bucket.Tag, Err: err}
	}
	defer func() { _ = stmt.Close() }()

	for i, e := range bucket.Entries {
		if _, err := stmt.ExecContext(ctx, bucket.Tag, e.ID, e.Updated, e.URL, e.Title); err != nil {
			return &StoreError{Op: "insert", Tag: bucket.Tag, Err: fmt.Errorf("entry %d (%q): %w", i, e.ID, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "commit", Tag: bucket.Tag, Err: err}
	}
	return nil
}

// ListSeen returns the records stored for tag in insertion order.
func (s *SQLite) ListSeen(ctx context.Context, tag string) ([]model.SeenEntry, error) {
	query, args, err := sq.Select(seenColumns...).
		From(seenTable).
		Where(sq.Eq{"tag": tag}).
		OrderBy("rowid").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StoreError{Op: "list", Tag: tag, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var seen []model.SeenEntry
	for rows.Next() {
		var r model.SeenEntry
		if err := rows.Scan(&r.Tag, &r.ID, &r.Updated, &r.URL, &r.Title); err != nil {
			return nil, &StoreError{Op: "scan", Tag: tag, Err: err}
		}
		seen = append(seen, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "list", Tag: tag, Err: err}
	}
	return seen, nil
}
