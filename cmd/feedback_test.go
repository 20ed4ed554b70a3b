package main

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

type mockAdder struct{ mock.Mock }

func (m *mockAdder) AddFeedback(ctx context.Context, entries ...model.FeedbackEntry) ([]model.FeedbackEntry, error) {
	args := m.Called(ctx, entries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FeedbackEntry), args.Error(1)
}

func writeSheet(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedback.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportFeedback(t *testing.T) {
	path := writeSheet(t, "campo_nombre,raw_ocr_output,valor_corregido,causa_raiz\n"+
		"monto,1.5OO,1500.00,caracter_mal_reconocido\n"+
		"fecha,15/O6/2024,15/06/2024,formato_erroneo\n")

	adder := new(mockAdder)
	adder.On("AddFeedback", mock.Anything, mock.MatchedBy(func(entries []model.FeedbackEntry) bool {
		return len(entries) == 2 && entries[0].FieldName == "monto" && entries[1].FieldName == "fecha"
	})).Return([]model.FeedbackEntry{{ID: "1"}, {ID: "2"}}, nil)

	n, err := importFeedback(context.Background(), adder, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	adder.AssertExpectations(t)
}

func TestImportFeedback_EmptySheet(t *testing.T) {
	path := writeSheet(t, "campo_nombre,raw_ocr_output,valor_corregido\n")

	adder := new(mockAdder)
	n, err := importFeedback(context.Background(), adder, path)
	require.NoError(t, err)
	assert.Zero(t, n)
	adder.AssertNotCalled(t, "AddFeedback", mock.Anything, mock.Anything)
}

func TestImportFeedback_StoreError(t *testing.T) {
	path := writeSheet(t, "campo_nombre,raw_ocr_output,valor_corregido\nmonto,1,1.00\n")

	adder := new(mockAdder)
	adder.On("AddFeedback", mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))

	_, err := importFeedback(context.Background(), adder, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestImportFeedback_BadHeader(t *testing.T) {
	path := writeSheet(t, "campo,valor\nmonto,1\n")

	_, err := importFeedback(context.Background(), new(mockAdder), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")
}
