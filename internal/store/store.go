// Package store persists the feedback log, its archive, and the archive of
// processed document results.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/receipt-ocr/internal/model"
)

// ResultFilter specifies criteria for listing archived results.
type ResultFilter struct {
	Status model.Status `json:"status,omitempty"`
	Since  time.Time    `json:"since,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for feedback and results.
type Store interface {
	// Feedback log
	AddFeedback(ctx context.Context, entries ...model.FeedbackEntry) ([]model.FeedbackEntry, error)
	PendingFeedback(ctx context.Context) ([]model.FeedbackEntry, error)
	ArchiveFeedback(ctx context.Context, batchID string, ids []string) error
	FeedbackStats(ctx context.Context) (*model.FeedbackStats, error)

	// Result archive
	SaveResult(ctx context.Context, r *model.DocumentResult) error
	GetResult(ctx context.Context, documentID string) (*model.DocumentResult, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]model.DocumentResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store for driver, "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	}
	return nil, eris.Errorf("store: unknown driver %q", driver)
}

// ErrNotFound is returned when a requested result does not exist.
var ErrNotFound = eris.New("result not found")

const defaultListLimit = 100

// prepareFeedback fills ids and timestamps, canonicalizes root causes and
// rejects entries missing a field name, raw text or corrected value.
func prepareFeedback(entries []model.FeedbackEntry, now time.Time) ([]model.FeedbackEntry, error) {
	out := make([]model.FeedbackEntry, 0, len(entries))
	var errs []string
	for i, e := range entries {
		e.FieldName = strings.TrimSpace(e.FieldName)
		e.RawOCROutput = strings.TrimSpace(e.RawOCROutput)
		e.CorrectedValue = strings.TrimSpace(e.CorrectedValue)
		switch {
		case e.FieldName == "":
			errs = append(errs, fmt.Sprintf("entry %d: field name is required", i))
			continue
		case e.RawOCROutput == "":
			errs = append(errs, fmt.Sprintf("entry %d: raw ocr output is required", i))
			continue
		case e.CorrectedValue == "":
			errs = append(errs, fmt.Sprintf("entry %d: corrected value is required", i))
			continue
		}
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		e.Timestamp = e.Timestamp.UTC()
		e.RootCause = model.NormalizeRootCause(string(e.RootCause))
		out = append(out, e)
	}
	if len(errs) > 0 {
		return nil, eris.Errorf("store: invalid feedback: %s", strings.Join(errs, "; "))
	}
	return out, nil
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
