package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/receipt-ocr/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS feedback (
	id              TEXT PRIMARY KEY,
	image_id        TEXT NOT NULL DEFAULT '',
	field_name      TEXT NOT NULL,
	raw_ocr_output  TEXT NOT NULL,
	corrected_value TEXT NOT NULL,
	root_cause      TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback_archive (
	id              TEXT PRIMARY KEY,
	batch_id        TEXT NOT NULL,
	image_id        TEXT NOT NULL DEFAULT '',
	field_name      TEXT NOT NULL,
	raw_ocr_output  TEXT NOT NULL,
	corrected_value TEXT NOT NULL,
	root_cause      TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	archived_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	document_id        TEXT PRIMARY KEY,
	image_path         TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	overall_confidence REAL NOT NULL DEFAULT 0,
	template_name      TEXT NOT NULL DEFAULT '',
	result             TEXT NOT NULL,
	created_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback(created_at);
CREATE INDEX IF NOT EXISTS idx_feedback_archive_batch ON feedback_archive(batch_id);
CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);
CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AddFeedback(ctx context.Context, entries ...model.FeedbackEntry) ([]model.FeedbackEntry, error) {
	prepared, err := prepareFeedback(entries, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if len(prepared) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin add feedback")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO feedback (id, image_id, field_name, raw_ocr_output, corrected_value, root_cause, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert feedback")
	}
	defer stmt.Close() //nolint:errcheck

	for _, e := range prepared {
		if _, err := stmt.ExecContext(ctx, e.ID, e.ImageID, e.FieldName, e.RawOCROutput,
			e.CorrectedValue, string(e.RootCause), e.Timestamp); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert feedback %s", e.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit add feedback")
	}
	return prepared, nil
}

func (s *SQLiteStore) PendingFeedback(ctx context.Context) ([]model.FeedbackEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, image_id, field_name, raw_ocr_output, corrected_value, root_cause, created_at
		 FROM feedback ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: pending feedback")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FeedbackEntry
	for rows.Next() {
		e, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: pending feedback iterate")
}

func (s *SQLiteStore) ArchiveFeedback(ctx context.Context, batchID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)
	args = append(args, batchID, time.Now().UTC())
	for _, id := range ids {
		args = append(args, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin archive")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO feedback_archive (id, batch_id, image_id, field_name, raw_ocr_output, corrected_value, root_cause, created_at, archived_at)
		 SELECT id, ?, image_id, field_name, raw_ocr_output, corrected_value, root_cause, created_at, ?
		 FROM feedback WHERE id IN (`+placeholders+`)`,
		args...,
	); err != nil {
		return eris.Wrapf(err, "sqlite: archive batch %s", batchID)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM feedback WHERE id IN (`+placeholders+`)`,
		args[2:]...,
	); err != nil {
		return eris.Wrapf(err, "sqlite: delete archived batch %s", batchID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit archive")
}

func (s *SQLiteStore) FeedbackStats(ctx context.Context) (*model.FeedbackStats, error) {
	stats := &model.FeedbackStats{ByField: map[string]int{}, ByRootCause: map[string]int{}}

	for _, q := range []struct {
		col  string
		dest map[string]int
	}{
		{"field_name", stats.ByField},
		{"root_cause", stats.ByRootCause},
	} {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+q.col+`, COUNT(*) FROM feedback GROUP BY `+q.col)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: feedback stats by %s", q.col)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close() //nolint:errcheck
				return nil, eris.Wrap(err, "sqlite: scan feedback stats")
			}
			q.dest[key] = n
			if q.col == "field_name" {
				stats.Total += n
			}
		}
		rows.Close() //nolint:errcheck
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "sqlite: feedback stats iterate")
		}
	}

	var last time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM feedback ORDER BY created_at DESC LIMIT 1`).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, eris.Wrap(err, "sqlite: last feedback")
	default:
		stats.LastFeedback = &last
	}
	return stats, nil
}

func (s *SQLiteStore) SaveResult(ctx context.Context, r *model.DocumentResult) error {
	resultJSON, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (document_id, image_path, status, overall_confidence, template_name, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET
		   image_path = excluded.image_path,
		   status = excluded.status,
		   overall_confidence = excluded.overall_confidence,
		   template_name = excluded.template_name,
		   result = excluded.result,
		   created_at = excluded.created_at`,
		r.DocumentID, r.ImagePath, string(r.Status), r.OverallConfidence, r.TemplateName,
		string(resultJSON), resultTime(r),
	)
	return eris.Wrapf(err, "sqlite: save result %s", r.DocumentID)
}

func (s *SQLiteStore) GetResult(ctx context.Context, documentID string) (*model.DocumentResult, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM results WHERE document_id = ?`, documentID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "document %s", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get result %s", documentID)
	}
	return decodeResult([]byte(raw))
}

func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.DocumentResult, error) {
	query := `SELECT result FROM results WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC, document_id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DocumentResult
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		r, err := decodeResult([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanFeedback(row scannable) (*model.FeedbackEntry, error) {
	var e model.FeedbackEntry
	var cause string
	if err := row.Scan(&e.ID, &e.ImageID, &e.FieldName, &e.RawOCROutput, &e.CorrectedValue, &cause, &e.Timestamp); err != nil {
		return nil, eris.Wrap(err, "store: scan feedback")
	}
	e.RootCause = model.RootCause(cause)
	return &e, nil
}

func decodeResult(raw []byte) (*model.DocumentResult, error) {
	var r model.DocumentResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal result")
	}
	return &r, nil
}

func resultTime(r *model.DocumentResult) time.Time {
	if r.StartedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.StartedAt.UTC()
}
