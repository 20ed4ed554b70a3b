package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/catalog"
	"github.com/sells-group/receipt-ocr/internal/correction"
	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/ocr"
	"github.com/sells-group/receipt-ocr/internal/ocr/tesseract"
	"github.com/sells-group/receipt-ocr/internal/pipeline"
	"github.com/sells-group/receipt-ocr/internal/store"
)

// extractEnv holds the store, catalogs, correction model and pipeline
// needed by the extract/batch/serve commands.
type extractEnv struct {
	Store     store.Store // nil when archiving is disabled
	Pipeline  *pipeline.Pipeline
	Fields    *model.FieldRegistry
	Templates []model.Template
	Model     *correction.Model
}

// Close releases resources held by the environment.
func (e *extractEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initExtract loads catalogs and the correction model and builds the
// Pipeline. With archive set, results are saved to the store. Callers
// should defer env.Close().
func initExtract(ctx context.Context, mode string, archive bool) (*extractEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	fields, err := catalog.LoadFields(cfg.Catalog.FieldsFile)
	if err != nil {
		return nil, err
	}
	templates, err := catalog.LoadTemplates(cfg.Catalog.TemplatesDir)
	if err != nil {
		return nil, err
	}
	m, err := correction.Load(cfg.Correction.ModelPath)
	if err != nil {
		return nil, err
	}

	env := &extractEnv{Fields: fields, Templates: templates, Model: m}
	var opts []pipeline.Option
	if archive {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
		opts = append(opts, pipeline.WithResultSaver(st))
	}

	scanner := ocr.NewScanner(tesseract.New(cfg.OCR.TessdataPrefix), cfg.OCR)
	env.Pipeline = pipeline.New(cfg, scanner, fields, templates, m, opts...)

	zap.L().Info("extraction environment ready",
		zap.Int("fields", len(fields.Fields)),
		zap.Int("templates", len(templates)),
		zap.Int("corrections", m.Len()),
		zap.Bool("archive", archive),
	)
	return env, nil
}
