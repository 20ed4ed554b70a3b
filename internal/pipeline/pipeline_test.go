package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/receipt-ocr/internal/catalog"
	"github.com/sells-group/receipt-ocr/internal/config"
	"github.com/sells-group/receipt-ocr/internal/locate"
	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/resilience"
)

type mockScanner struct {
	mock.Mock
}

func (m *mockScanner) Scan(ctx context.Context, id, path string) (*model.Document, locate.RegionReader, error) {
	args := m.Called(ctx, id, path)
	var doc *model.Document
	if args.Get(0) != nil {
		doc = args.Get(0).(*model.Document)
	}
	var reader locate.RegionReader
	if args.Get(1) != nil {
		reader = args.Get(1).(locate.RegionReader)
	}
	return doc, reader, args.Error(2)
}

type mockSaver struct {
	mock.Mock
}

func (m *mockSaver) SaveResult(ctx context.Context, r *model.DocumentResult) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

var testNow = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		OCR:        config.OCRConfig{Language: "spa", TokenFloor: 20},
		Extraction: config.DefaultExtractionConfig(),
		Template:   config.DefaultTemplateConfig(),
	}
}

func tok(text string, conf float64, left, top, width, height int) model.Token {
	return model.Token{Text: text, Confidence: conf, Left: left, Top: top, Width: width, Height: height}
}

func receipt(id string) *model.Document {
	return &model.Document{
		ID:     id,
		Width:  1000,
		Height: 2000,
		Tokens: []model.Token{
			tok("  ", 90, 0, 0, 10, 10),
			tok("Monto:", 92, 50, 100, 90, 30),
			tok("1.250,50", 90, 160, 100, 150, 30),
			tok("Fecha:", 91, 50, 200, 90, 30),
			tok("15/06/2024", 88, 160, 200, 140, 30),
			tok("Operacion:", 93, 50, 300, 140, 30),
			tok("004512345678", 87, 200, 300, 180, 30),
			tok("C.I.:", 90, 50, 400, 60, 30),
			tok("V-12345678", 86, 120, 400, 140, 30),
			tok("Pago", 80, 50, 900, 60, 30),
			tok("BDV", 80, 120, 900, 70, 30),
			tok("ruido", 12, 50, 1500, 80, 30),
		},
		FullText: "Monto: 1.250,50\nFecha: 15/06/2024\nOperacion: 004512345678",
	}
}

func newTestPipeline(sc Scanner, fields []model.FieldDefinition, templates []model.Template, opts ...Option) *Pipeline {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(testConfig(), sc, model.NewFieldRegistry(fields), templates, nil, opts...)
}

func TestProcess_Dynamic(t *testing.T) {
	sc := &mockScanner{}
	sc.On("Scan", mock.Anything, "doc-1", "/in/r.png").Return(receipt("doc-1"), nil, nil)

	saver := &mockSaver{}
	saver.On("SaveResult", mock.Anything, mock.MatchedBy(func(r *model.DocumentResult) bool {
		return r.DocumentID == "doc-1"
	})).Return(nil)

	p := newTestPipeline(sc, catalog.DefaultFields(), nil, WithResultSaver(saver))
	res := p.Process(context.Background(), "/in/r.png", "doc-1")

	require.NotNil(t, res)
	assert.Equal(t, model.StatusSuccess, res.Status)
	assert.True(t, res.Success)
	assert.Equal(t, model.ModeDynamic, res.Method)
	assert.Empty(t, res.TemplateName)
	assert.Empty(t, res.Error)
	assert.True(t, res.Validation.CrossValidationPassed)
	assert.Equal(t, testNow, res.StartedAt)
	assert.Equal(t, 0, res.Status.ExitCode())

	monto := res.Fields["monto"]
	assert.Equal(t, "1250.50", monto.Value)
	assert.Equal(t, []int{0, 1}, monto.TokenIndexes, "blank and faint tokens are dropped first")
	assert.Equal(t, "2024-06-15", res.Fields["fecha"].Value)
	assert.Len(t, res.Fields, len(catalog.DefaultFields()))

	sc.AssertExpectations(t)
	saver.AssertExpectations(t)
}

func TestProcess_TemplateSelected(t *testing.T) {
	sc := &mockScanner{}
	sc.On("Scan", mock.Anything, "doc-2", "r.png").Return(receipt("doc-2"), nil, nil)

	templates := []model.Template{
		{Name: "otro_banco", TextAnchors: []string{"mercantil"}},
		{Name: "pago_movil", TextAnchors: []string{"monto", "fecha"}},
	}
	res := newTestPipeline(sc, catalog.DefaultFields(), templates).Process(context.Background(), "r.png", "doc-2")

	assert.Equal(t, model.ModeTemplate, res.Method)
	assert.Equal(t, "pago_movil", res.TemplateName)
	assert.InDelta(t, 0.6, res.TemplateScore, 1e-9)
	assert.Equal(t, "1250.50", res.Fields["monto"].Value, "fields without an ROI use the cascade")
}

func TestProcess_ScanFailure(t *testing.T) {
	sc := &mockScanner{}
	sc.On("Scan", mock.Anything, "doc-3", "missing.png").Return(nil, nil, errors.New("ocr: open image missing.png"))

	saver := &mockSaver{}
	saver.On("SaveResult", mock.Anything, mock.Anything).Return(nil)

	res := newTestPipeline(sc, catalog.DefaultFields(), nil, WithResultSaver(saver)).
		Process(context.Background(), "missing.png", "doc-3")

	assert.Equal(t, model.StatusFailed, res.Status)
	assert.False(t, res.Success)
	assert.Equal(t, model.ModeNone, res.Method)
	assert.Contains(t, res.Error, "open image")
	assert.NotNil(t, res.Fields)
	assert.Equal(t, 1, res.Status.ExitCode())
	saver.AssertNumberOfCalls(t, "SaveResult", 1)
}

func TestProcess_NoFields(t *testing.T) {
	sc := &mockScanner{}

	res := newTestPipeline(sc, nil, nil).Process(context.Background(), "r.png", "doc-4")

	assert.Equal(t, model.StatusNoDataExtracted, res.Status)
	assert.Equal(t, locate.ReasonNoFields, res.Error)
	assert.Empty(t, res.Fields)
	sc.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_NoTokens(t *testing.T) {
	sc := &mockScanner{}
	sc.On("Scan", mock.Anything, "doc-5", "blank.png").
		Return(&model.Document{ID: "doc-5", Width: 800, Height: 1200}, nil, nil)

	res := newTestPipeline(sc, catalog.DefaultFields(), nil).Process(context.Background(), "blank.png", "doc-5")

	assert.Equal(t, model.StatusNoDataExtracted, res.Status)
	assert.False(t, res.Success)
	assert.Zero(t, res.OverallConfidence)
	for name, c := range res.Fields {
		assert.False(t, c.Successful, name)
		assert.NotEmpty(t, c.Reason, name)
	}
}

func TestProcess_RecoversPanic(t *testing.T) {
	sc := &mockScanner{}
	sc.On("Scan", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("decoder exploded")
	})

	res := newTestPipeline(sc, catalog.DefaultFields(), nil).Process(context.Background(), "r.png", "doc-6")

	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "decoder exploded")
}

func TestProcess_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := &mockScanner{}
	sc.On("Scan", mock.Anything, "doc-7", "r.png").Return(receipt("doc-7"), nil, nil)

	res := newTestPipeline(sc, catalog.DefaultFields(), nil).Process(ctx, "r.png", "doc-7")

	assert.Equal(t, model.StatusNoDataExtracted, res.Status)
	assert.Equal(t, context.Canceled.Error(), res.Error)
}

func TestProcess_GeneratesID(t *testing.T) {
	sc := &mockScanner{}
	sc.On("Scan", mock.Anything, mock.AnythingOfType("string"), "r.png").Return(receipt(""), nil, nil)

	res := newTestPipeline(sc, catalog.DefaultFields(), nil).Process(context.Background(), "r.png", "")
	assert.Len(t, res.DocumentID, 36)
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "doc-1", DocumentID(" doc-1 "))
	assert.Len(t, DocumentID(""), 36)
	assert.Len(t, DocumentID("   "), 36)
	assert.NotEqual(t, DocumentID(""), DocumentID(""))
}

func TestProcess_ArchiveErrorIgnored(t *testing.T) {
	sc := &mockScanner{}
	sc.On("Scan", mock.Anything, "doc-8", "r.png").Return(receipt("doc-8"), nil, nil)

	saver := &mockSaver{}
	saver.On("SaveResult", mock.Anything, mock.Anything).Return(errors.New("db locked"))

	res := newTestPipeline(sc, catalog.DefaultFields(), nil, WithResultSaver(saver)).
		Process(context.Background(), "r.png", "doc-8")
	assert.Equal(t, model.StatusSuccess, res.Status)
	saver.AssertExpectations(t)
}

func TestProcess_ArchiveRetriesBusyStore(t *testing.T) {
	sc := &mockScanner{}
	sc.On("Scan", mock.Anything, "doc-9", "r.png").Return(receipt("doc-9"), nil, nil)

	saver := &mockSaver{}
	saver.On("SaveResult", mock.Anything, mock.Anything).
		Return(resilience.NewTransientError(errors.New("database is locked"))).Once()
	saver.On("SaveResult", mock.Anything, mock.Anything).Return(nil).Once()

	retry := resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	newTestPipeline(sc, catalog.DefaultFields(), nil, WithResultSaver(saver), WithArchiveRetry(retry)).
		Process(context.Background(), "r.png", "doc-9")
	saver.AssertNumberOfCalls(t, "SaveResult", 2)
}
