package correction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/receipt-ocr/internal/model"
)

type mockFeedbackLog struct {
	mock.Mock
}

func (m *mockFeedbackLog) PendingFeedback(ctx context.Context) ([]model.FeedbackEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FeedbackEntry), args.Error(1)
}

func (m *mockFeedbackLog) ArchiveFeedback(ctx context.Context, batchID string, ids []string) error {
	args := m.Called(ctx, batchID, ids)
	return args.Error(0)
}

func TestRetrainer_Run(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.json")
	pending := []model.FeedbackEntry{
		fb("monto", "1.5OO,00", "1.500,00", model.CauseMisrecognizedChar),
		fb("monto", "2OO,00", "200,00", model.CauseMisrecognizedChar),
		fb("fecha", "", "01/01/2024", model.CauseOther),
		fb("operacion", "123", "12345678", model.CauseFieldNotDetected),
	}

	log := &mockFeedbackLog{}
	log.On("PendingFeedback", mock.Anything).Return(pending, nil)
	log.On("ArchiveFeedback", mock.Anything, mock.AnythingOfType("string"),
		[]string{pending[0].ID, pending[1].ID, pending[2].ID, pending[3].ID}).Return(nil)

	m := NewModel()
	rep, err := NewRetrainer(log, m, path).Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, rep.BatchID)
	assert.Equal(t, 3, rep.Processed)
	assert.Equal(t, 1, rep.Skipped)
	assert.Len(t, rep.Errors, 1)
	assert.Equal(t, 3, rep.Adjustments)
	assert.Equal(t, map[string]int{"monto": 2, "operacion": 1}, rep.FieldsUpdated)
	assert.Equal(t, 2, rep.RootCauses[string(model.CauseMisrecognizedChar)])
	assert.Equal(t, 3, rep.ModelSize)

	require.NotNil(t, rep.Suggestions.Field)
	assert.Equal(t, "monto", rep.Suggestions.Field.Field)
	require.NotNil(t, rep.Suggestions.Cause)
	assert.Equal(t, string(model.CauseMisrecognizedChar), rep.Suggestions.Cause.Cause)
	assert.Len(t, rep.Suggestions.Recommendations, 1)

	saved, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Len())
	log.AssertExpectations(t)
}

func TestRetrainer_NoPending(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.json")
	log := &mockFeedbackLog{}
	log.On("PendingFeedback", mock.Anything).Return([]model.FeedbackEntry{}, nil)

	rep, err := NewRetrainer(log, NewModel(), path).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Processed)
	assert.Empty(t, rep.BatchID)
	log.AssertNotCalled(t, "ArchiveFeedback", mock.Anything, mock.Anything, mock.Anything)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "model is not rewritten without feedback")
}

func TestRetrainer_PendingError(t *testing.T) {
	t.Parallel()

	log := &mockFeedbackLog{}
	log.On("PendingFeedback", mock.Anything).Return(nil, errors.New("db down"))

	_, err := NewRetrainer(log, NewModel(), filepath.Join(t.TempDir(), "m.json")).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load pending feedback")
}

func TestRetrainer_ArchiveErrorKeepsSavedModel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.json")
	log := &mockFeedbackLog{}
	log.On("PendingFeedback", mock.Anything).
		Return([]model.FeedbackEntry{fb("monto", "x", "1.00", model.CauseOther)}, nil)
	log.On("ArchiveFeedback", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("locked"))

	_, err := NewRetrainer(log, NewModel(), path).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive batch")

	saved, loadErr := Load(path)
	require.NoError(t, loadErr)
	assert.Equal(t, 1, saved.Len())
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	s := suggest(map[string]int{"b": 2, "a": 2, "c": 1}, map[string]int{"otro": 4})
	require.NotNil(t, s.Field)
	assert.Equal(t, "a", s.Field.Field)
	assert.Equal(t, "otro", s.Cause.Cause)
	assert.Empty(t, s.Recommendations)

	empty := suggest(map[string]int{}, map[string]int{})
	assert.Nil(t, empty.Field)
	assert.Nil(t, empty.Cause)
}

func TestLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.json.lock")
	l, err := AcquireLock(path)
	require.NoError(t, err)

	_, err = AcquireLock(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")

	require.NoError(t, l.Release())
	require.NoError(t, l.Release())

	l2, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}
