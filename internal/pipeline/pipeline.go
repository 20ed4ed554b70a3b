// Package pipeline runs one receipt image end to end: OCR, template
// selection, field assembly and document-level validation.
package pipeline

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/config"
	"github.com/sells-group/receipt-ocr/internal/crossfield"
	"github.com/sells-group/receipt-ocr/internal/extract"
	"github.com/sells-group/receipt-ocr/internal/locate"
	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/resilience"
	"github.com/sells-group/receipt-ocr/internal/template"
	"github.com/sells-group/receipt-ocr/internal/validate"
)

// Scanner produces the token view of an image and a region reader over it.
type Scanner interface {
	Scan(ctx context.Context, id, path string) (*model.Document, locate.RegionReader, error)
}

// ResultSaver archives processed results.
type ResultSaver interface {
	SaveResult(ctx context.Context, r *model.DocumentResult) error
}

// Pipeline holds the per-process extraction state. Everything it holds is
// read-only after New, so Process may run concurrently.
type Pipeline struct {
	cfg       *config.Config
	scanner   Scanner
	fields    *model.FieldRegistry
	templates []model.Template
	scorer    *template.Scorer
	assembler *extract.Assembler
	checker   *crossfield.Checker
	results   ResultSaver
	retry     resilience.RetryConfig
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResultSaver archives every processed result.
func WithResultSaver(s ResultSaver) Option {
	return func(p *Pipeline) { p.results = s }
}

// WithArchiveRetry sets the retry policy for saving results.
func WithArchiveRetry(cfg resilience.RetryConfig) Option {
	return func(p *Pipeline) { p.retry = cfg }
}

// WithClock overrides the clock used for timestamps and date validation.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. corr may be nil for an empty correction model.
func New(cfg *config.Config, scanner Scanner, fields *model.FieldRegistry, templates []model.Template, corr extract.Corrector, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		scanner:   scanner,
		fields:    fields,
		templates: templates,
		scorer:    template.NewScorer(cfg.Template),
		retry:     resilience.DefaultRetryConfig(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}

	v := validate.New(fields, validate.WithClock(p.now))
	p.assembler = extract.New(fields, locate.New(cfg.Extraction, v, nil), v, corr)
	p.checker = crossfield.New(fields, v, cfg.Extraction.LowConfidenceThreshold)
	return p
}

// DocumentID returns id, or a fresh random id when id is blank.
func DocumentID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.New().String()
}

// Process extracts every field from the image at path. It always returns a
// well-formed result; fatal problems yield status failed with the error
// recorded. An empty id is replaced by a random one.
func (p *Pipeline) Process(ctx context.Context, path, id string) (res *model.DocumentResult) {
	id = DocumentID(id)
	started := p.now()
	log := zap.L().With(zap.String("document_id", id), zap.String("path", path))
	log.Info("pipeline: processing document")

	if secs := p.cfg.Extraction.TimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline: panic",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res = model.FailedResult(id, path, started, eris.Errorf("pipeline: %v", r))
		}
		res.Duration = p.now().Sub(started)
		p.archive(ctx, log, res)
		log.Info("pipeline: document complete",
			zap.String("status", string(res.Status)),
			zap.Float64("overall_confidence", res.OverallConfidence),
			zap.Int64("duration_ms", res.Duration.Milliseconds()),
		)
	}()

	if len(p.fields.Fields) == 0 {
		log.Warn("pipeline: no fields configured")
		r := model.FailedResult(id, path, started, nil)
		r.Status = model.StatusNoDataExtracted
		r.Error = locate.ReasonNoFields
		return r
	}

	var (
		doc    *model.Document
		reader locate.RegionReader
	)
	if err := p.phase(log, "ocr", func() error {
		var err error
		doc, reader, err = p.scanner.Scan(ctx, id, path)
		return err
	}); err != nil {
		return model.FailedResult(id, path, started, err)
	}
	doc.Tokens = model.FilterTokens(doc.Tokens, p.cfg.OCR.TokenFloor)

	res = &model.DocumentResult{
		DocumentID: id,
		ImagePath:  path,
		Method:     model.ModeDynamic,
		StartedAt:  started,
	}

	var tmpl *model.Template
	_ = p.phase(log, "template", func() error {
		if m, ok := p.scorer.Select(p.templates, doc); ok {
			tmpl = m.Template
			res.Method = model.ModeTemplate
			res.TemplateName = m.Template.Name
			res.TemplateScore = m.Score.Total
		}
		return nil
	})

	_ = p.phase(log, "assemble", func() error {
		res.Fields = p.assembler.Assemble(ctx, doc, tmpl, reader)
		return nil
	})

	outcome := p.checker.Evaluate(res.Fields)
	res.Validation = outcome.Validation
	res.OverallConfidence = outcome.OverallConfidence
	res.Status = outcome.Status
	res.Success = outcome.Status != model.StatusNoDataExtracted

	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("pipeline: extraction timed out")
		}
	}
	return res
}

// phase runs fn and logs its duration the way every pipeline step is
// reported.
func (p *Pipeline) phase(log *zap.Logger, name string, fn func() error) error {
	start := p.now()
	err := fn()
	duration := p.now().Sub(start).Milliseconds()
	if err != nil {
		log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return err
	}
	log.Debug("pipeline: phase complete",
		zap.String("phase", name),
		zap.Int64("duration_ms", duration),
	)
	return nil
}

func (p *Pipeline) archive(ctx context.Context, log *zap.Logger, res *model.DocumentResult) {
	if p.results == nil {
		return
	}
	retry := p.retry
	retry.OnRetry = resilience.RetryLogger("save_result")
	err := resilience.Do(context.WithoutCancel(ctx), retry, func(ctx context.Context) error {
		return p.results.SaveResult(ctx, res)
	})
	if err != nil {
		log.Warn("pipeline: failed to archive result", zap.Error(err))
	}
}
