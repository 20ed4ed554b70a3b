package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/receipt-ocr/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func entry(field, raw, corrected, cause string) model.FeedbackEntry {
	return model.FeedbackEntry{
		ImageID:        "img-" + field,
		FieldName:      field,
		RawOCROutput:   raw,
		CorrectedValue: corrected,
		RootCause:      model.RootCause(cause),
	}
}

// --- Feedback ---

func TestSQLite_Feedback_AddAndPending(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	added, err := st.AddFeedback(ctx,
		entry("monto", "1.5OO,00", "1.500,00", "character misrecognized"),
		entry("fecha", "3l/12/2024", "31/12/2024", "formato_erroneo"),
	)
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.NotEmpty(t, added[0].ID)
	assert.False(t, added[0].Timestamp.IsZero())
	assert.Equal(t, model.CauseMisrecognizedChar, added[0].RootCause)

	pending, err := st.PendingFeedback(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	ids := []string{pending[0].ID, pending[1].ID}
	assert.ElementsMatch(t, []string{added[0].ID, added[1].ID}, ids)
	for _, p := range pending {
		if p.FieldName == "monto" {
			assert.Equal(t, "1.5OO,00", p.RawOCROutput)
			assert.Equal(t, "1.500,00", p.CorrectedValue)
			assert.Equal(t, model.CauseMisrecognizedChar, p.RootCause)
		}
	}
}

func TestSQLite_Feedback_RejectsIncomplete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.AddFeedback(ctx,
		entry("monto", "x", "1.00", "otro"),
		entry("", "x", "1.00", "otro"),
		entry("fecha", "x", " ", "otro"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 1: field name is required")
	assert.Contains(t, err.Error(), "entry 2: corrected value is required")

	pending, err := st.PendingFeedback(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLite_Feedback_TrimsRawText(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	added, err := st.AddFeedback(ctx, entry("operacion", " 0O4512345678\n", "004512345678", "otro"))
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "0O4512345678", added[0].RawOCROutput)

	pending, err := st.PendingFeedback(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "0O4512345678", pending[0].RawOCROutput)

	_, err = st.AddFeedback(ctx, entry("operacion", "  ", "004512345678", "otro"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 0: raw ocr output is required")
}

func TestSQLite_Feedback_Archive(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	added, err := st.AddFeedback(ctx,
		entry("monto", "a", "1.00", "otro"),
		entry("monto", "b", "2.00", "otro"),
		entry("fecha", "c", "01/01/2024", "otro"),
	)
	require.NoError(t, err)

	require.NoError(t, st.ArchiveFeedback(ctx, "batch-1", []string{added[0].ID, added[2].ID}))
	require.NoError(t, st.ArchiveFeedback(ctx, "batch-2", nil))

	pending, err := st.PendingFeedback(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, added[1].ID, pending[0].ID)

	var archived int
	require.NoError(t, st.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback_archive WHERE batch_id = ?`, "batch-1").Scan(&archived))
	assert.Equal(t, 2, archived)
}

func TestSQLite_Feedback_Stats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	empty, err := st.FeedbackStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Nil(t, empty.LastFeedback)

	ts := time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)
	e := entry("monto", "a", "1.00", "ruido_imagen")
	e.Timestamp = ts
	_, err = st.AddFeedback(ctx, e,
		entry("monto", "b", "2.00", "otro"),
		entry("fecha", "c", "01/01/2024", "otro"),
	)
	require.NoError(t, err)

	stats, err := st.FeedbackStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"monto": 2, "fecha": 1}, stats.ByField)
	assert.Equal(t, map[string]int{"ruido_imagen": 1, "otro": 2}, stats.ByRootCause)
	require.NotNil(t, stats.LastFeedback)
	assert.True(t, stats.LastFeedback.After(ts))
}

// --- Results ---

func result(id string, status model.Status, conf float64, started time.Time) *model.DocumentResult {
	return &model.DocumentResult{
		DocumentID:        id,
		ImagePath:         "/tmp/" + id + ".png",
		Success:           status == model.StatusSuccess,
		Method:            model.ModeDynamic,
		Status:            status,
		OverallConfidence: conf,
		StartedAt:         started,
		Fields: map[string]model.ExtractionCandidate{
			"monto": {FieldName: "monto", Value: "10.00", Confidence: conf, Successful: true, Method: model.MethodKeywordAnchored},
		},
		Validation: model.ValidationResults{PerField: map[string]bool{"monto": true}, CrossValidationPassed: true},
	}
}

func TestSQLite_Results_SaveGetList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveResult(ctx, result("r1", model.StatusSuccess, 90, base)))
	require.NoError(t, st.SaveResult(ctx, result("r2", model.StatusLowConfidence, 40, base.Add(time.Hour))))
	require.NoError(t, st.SaveResult(ctx, result("r3", model.StatusSuccess, 80, base.Add(2*time.Hour))))

	got, err := st.GetResult(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusLowConfidence, got.Status)
	assert.Equal(t, "10.00", got.Fields["monto"].Value)

	all, err := st.ListResults(ctx, ResultFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].DocumentID)

	ok, err := st.ListResults(ctx, ResultFilter{Status: model.StatusSuccess, Limit: 1})
	require.NoError(t, err)
	require.Len(t, ok, 1)
	assert.Equal(t, "r3", ok[0].DocumentID)

	paged, err := st.ListResults(ctx, ResultFilter{Status: model.StatusSuccess, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "r1", paged[0].DocumentID)
}

func TestSQLite_Results_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.SaveResult(ctx, result("r1", model.StatusLowConfidence, 40, now)))
	require.NoError(t, st.SaveResult(ctx, result("r1", model.StatusSuccess, 95, now)))

	all, err := st.ListResults(ctx, ResultFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.StatusSuccess, all[0].Status)
}

func TestSQLite_Results_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetResult(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "result not found")
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "open.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Close())
}
