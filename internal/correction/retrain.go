package correction

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/model"
)

// FeedbackLog is the pending feedback the retrainer consumes.
type FeedbackLog interface {
	PendingFeedback(ctx context.Context) ([]model.FeedbackEntry, error)
	ArchiveFeedback(ctx context.Context, batchID string, ids []string) error
}

var causeRecommendations = map[model.RootCause]string{
	model.CauseBadSegmentation:   "adjust base template ROIs or the dynamic zone heuristics",
	model.CauseMisrecognizedChar: "review image preprocessing or the OCR engine configuration",
	model.CauseFieldNotDetected:  "review field keywords and contextual detection heuristics",
	model.CauseTemplateError:     "re-check template anchors and structural regions",
	model.CauseImageNoise:        "raise denoising strength for noisy captures",
}

// FieldSuggestion flags the field that needed the most corrections.
type FieldSuggestion struct {
	Field          string `json:"field"`
	Count          int    `json:"count"`
	Recommendation string `json:"recommendation"`
}

// CauseSuggestion flags the most frequent root cause.
type CauseSuggestion struct {
	Cause     string `json:"cause"`
	Frequency int    `json:"frequency"`
	Priority  string `json:"priority"`
}

// Suggestions are improvement hints derived from one retraining batch.
type Suggestions struct {
	Field           *FieldSuggestion `json:"field,omitempty"`
	Cause           *CauseSuggestion `json:"cause,omitempty"`
	Recommendations []string         `json:"recommendations,omitempty"`
}

// Report summarizes one retraining run.
type Report struct {
	BatchID       string         `json:"batch_id,omitempty"`
	Processed     int            `json:"processed"`
	Skipped       int            `json:"skipped"`
	Adjustments   int            `json:"confidence_adjustments"`
	FieldsUpdated map[string]int `json:"fields_updated"`
	RootCauses    map[string]int `json:"root_causes"`
	Errors        []string       `json:"errors,omitempty"`
	Suggestions   Suggestions    `json:"suggestions"`
	ModelSize     int            `json:"model_size"`
	StartedAt     time.Time      `json:"started_at"`
	Duration      time.Duration  `json:"duration_ns"`
}

// Retrainer folds pending feedback into the correction model, saves it,
// and archives the consumed feedback. Only one Retrainer may run at a
// time against a model file; see AcquireLock.
type Retrainer struct {
	log       FeedbackLog
	model     *Model
	modelPath string
	now       func() time.Time
}

// NewRetrainer creates a Retrainer writing to modelPath.
func NewRetrainer(log FeedbackLog, m *Model, modelPath string) *Retrainer {
	return &Retrainer{log: log, model: m, modelPath: modelPath, now: time.Now}
}

// Run processes every pending feedback entry. The model is saved before
// the batch, including skipped entries, is archived.
func (r *Retrainer) Run(ctx context.Context) (*Report, error) {
	start := r.now()
	log := zap.L().With(zap.String("component", "retrain"))

	rep := &Report{
		FieldsUpdated: make(map[string]int),
		RootCauses:    make(map[string]int),
		StartedAt:     start,
	}

	pending, err := r.log.PendingFeedback(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "correction: load pending feedback")
	}
	if len(pending) == 0 {
		log.Info("no pending feedback")
		rep.ModelSize = r.model.Len()
		rep.Duration = r.now().Sub(start)
		return rep, nil
	}

	ids := make([]string, 0, len(pending))
	for _, fb := range pending {
		ids = append(ids, fb.ID)
		if !r.model.Apply(fb) {
			rep.Skipped++
			rep.Errors = append(rep.Errors, fmt.Sprintf("feedback %s: missing field, raw text or corrected value", fb.ID))
			continue
		}
		rep.Processed++
		rep.FieldsUpdated[fb.FieldName]++
		if fb.RootCause != "" {
			rep.RootCauses[string(fb.RootCause)]++
		}
		if fb.RootCause.Known() {
			rep.Adjustments++
		} else {
			log.Warn("unknown root cause, no confidence adjustment",
				zap.String("feedback_id", fb.ID),
				zap.String("root_cause", string(fb.RootCause)),
			)
		}
	}

	if err := r.model.Save(r.modelPath); err != nil {
		return nil, eris.Wrap(err, "correction: save model")
	}

	rep.BatchID = uuid.New().String()
	if err := r.log.ArchiveFeedback(ctx, rep.BatchID, ids); err != nil {
		return nil, eris.Wrapf(err, "correction: archive batch %s", rep.BatchID)
	}

	rep.Suggestions = suggest(rep.FieldsUpdated, rep.RootCauses)
	rep.ModelSize = r.model.Len()
	rep.Duration = r.now().Sub(start)

	log.Info("retraining complete",
		zap.String("batch_id", rep.BatchID),
		zap.Int("processed", rep.Processed),
		zap.Int("skipped", rep.Skipped),
		zap.Int("adjustments", rep.Adjustments),
		zap.Int("model_size", rep.ModelSize),
	)
	for _, rec := range rep.Suggestions.Recommendations {
		log.Info("recommendation", zap.String("text", rec))
	}
	return rep, nil
}

// suggest picks the most corrected field and the most frequent cause.
// Ties go to the name that sorts first.
func suggest(fields, causes map[string]int) Suggestions {
	var s Suggestions
	if name, n := top(fields); n > 0 {
		s.Field = &FieldSuggestion{
			Field:          name,
			Count:          n,
			Recommendation: "review ROI configuration and validation patterns",
		}
	}
	if name, n := top(causes); n > 0 {
		s.Cause = &CauseSuggestion{Cause: name, Frequency: n, Priority: "high"}
		if rec, ok := causeRecommendations[model.RootCause(name)]; ok {
			s.Recommendations = append(s.Recommendations, rec)
		}
	}
	return s
}

func top(counts map[string]int) (string, int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, n := "", 0
	for _, k := range keys {
		if counts[k] > n {
			best, n = k, counts[k]
		}
	}
	return best, n
}

// Lock is an exclusive lock file guarding the model against concurrent
// retrainers.
type Lock struct {
	path string
}

// AcquireLock creates path exclusively. It fails if another process holds
// the lock.
func AcquireLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, eris.Errorf("correction: model is locked by %s", path)
		}
		return nil, eris.Wrapf(err, "correction: create lock %s", path)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid()) //nolint:errcheck
	if err := f.Close(); err != nil {
		return nil, eris.Wrap(err, "correction: close lock")
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "correction: release lock %s", l.path)
	}
	return nil
}
