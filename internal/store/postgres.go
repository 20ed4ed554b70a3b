package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/receipt-ocr/internal/db"
	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var feedbackColumns = []string{"id", "image_id", "field_name", "raw_ocr_output", "corrected_value", "root_cause", "created_at"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	ping := resilience.DefaultRetryConfig()
	ping.OnRetry = resilience.RetryLogger("postgres_ping")
	if err := resilience.Do(ctx, ping, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS feedback (
	id              TEXT PRIMARY KEY,
	image_id        TEXT NOT NULL DEFAULT '',
	field_name      TEXT NOT NULL,
	raw_ocr_output  TEXT NOT NULL,
	corrected_value TEXT NOT NULL,
	root_cause      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS feedback_archive (
	id              TEXT PRIMARY KEY,
	batch_id        TEXT NOT NULL,
	image_id        TEXT NOT NULL DEFAULT '',
	field_name      TEXT NOT NULL,
	raw_ocr_output  TEXT NOT NULL,
	corrected_value TEXT NOT NULL,
	root_cause      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	archived_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS results (
	document_id        TEXT PRIMARY KEY,
	image_path         TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	overall_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	template_name      TEXT NOT NULL DEFAULT '',
	result             JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback(created_at);
CREATE INDEX IF NOT EXISTS idx_feedback_archive_batch ON feedback_archive(batch_id);
CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);
CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) AddFeedback(ctx context.Context, entries ...model.FeedbackEntry) ([]model.FeedbackEntry, error) {
	prepared, err := prepareFeedback(entries, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if len(prepared) == 0 {
		return nil, nil
	}

	rows := make([][]any, len(prepared))
	for i, e := range prepared {
		rows[i] = []any{e.ID, e.ImageID, e.FieldName, e.RawOCROutput, e.CorrectedValue, string(e.RootCause), e.Timestamp}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin add feedback")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := db.CopyFrom(ctx, tx, "feedback", feedbackColumns, rows); err != nil {
		return nil, eris.Wrap(err, "postgres: add feedback")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit add feedback")
	}
	return prepared, nil
}

func (s *PostgresStore) PendingFeedback(ctx context.Context) ([]model.FeedbackEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, image_id, field_name, raw_ocr_output, corrected_value, root_cause, created_at
		 FROM feedback ORDER BY created_at, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: pending feedback")
	}
	defer rows.Close()

	var out []model.FeedbackEntry
	for rows.Next() {
		e, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: pending feedback iterate")
}

func (s *PostgresStore) ArchiveFeedback(ctx context.Context, batchID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin archive")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO feedback_archive (id, batch_id, image_id, field_name, raw_ocr_output, corrected_value, root_cause, created_at, archived_at)
		 SELECT id, $1, image_id, field_name, raw_ocr_output, corrected_value, root_cause, created_at, now()
		 FROM feedback WHERE id = ANY($2)`,
		batchID, ids,
	); err != nil {
		return eris.Wrapf(err, "postgres: archive batch %s", batchID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM feedback WHERE id = ANY($1)`, ids); err != nil {
		return eris.Wrapf(err, "postgres: delete archived batch %s", batchID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit archive")
}

func (s *PostgresStore) FeedbackStats(ctx context.Context) (*model.FeedbackStats, error) {
	stats := &model.FeedbackStats{ByField: map[string]int{}, ByRootCause: map[string]int{}}

	rows, err := s.pool.Query(ctx,
		`SELECT field_name, root_cause, COUNT(*) FROM feedback GROUP BY field_name, root_cause`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: feedback stats")
	}
	for rows.Next() {
		var field, cause string
		var n int
		if err := rows.Scan(&field, &cause, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan feedback stats")
		}
		stats.ByField[field] += n
		stats.ByRootCause[cause] += n
		stats.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: feedback stats iterate")
	}

	var last *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT max(created_at) FROM feedback`).Scan(&last); err != nil {
		return nil, eris.Wrap(err, "postgres: last feedback")
	}
	stats.LastFeedback = last
	return stats, nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, r *model.DocumentResult) error {
	resultJSON, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO results (document_id, image_path, status, overall_confidence, template_name, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (document_id) DO UPDATE SET
		   image_path = EXCLUDED.image_path,
		   status = EXCLUDED.status,
		   overall_confidence = EXCLUDED.overall_confidence,
		   template_name = EXCLUDED.template_name,
		   result = EXCLUDED.result,
		   created_at = EXCLUDED.created_at`,
		r.DocumentID, r.ImagePath, string(r.Status), r.OverallConfidence, r.TemplateName,
		resultJSON, resultTime(r),
	)
	return eris.Wrapf(err, "postgres: save result %s", r.DocumentID)
}

func (s *PostgresStore) GetResult(ctx context.Context, documentID string) (*model.DocumentResult, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM results WHERE document_id = $1`, documentID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "document %s", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get result %s", documentID)
	}
	return decodeResult(raw)
}

func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.DocumentResult, error) {
	query := `SELECT result FROM results WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	query += ` ORDER BY created_at DESC, document_id`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []model.DocumentResult
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		r, err := decodeResult(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list results iterate")
}
