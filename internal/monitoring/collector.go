// Package monitoring watches extraction quality over the result archive and
// raises alerts when failure rates, confidence or the feedback backlog
// cross their thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/store"
)

// MetricsSnapshot holds a point-in-time view of extraction quality.
type MetricsSnapshot struct {
	Total           int                  `json:"total"`
	ByStatus        map[model.Status]int `json:"by_status"`
	FailRate        float64              `json:"fail_rate"`         // failed or no data
	WarnRate        float64              `json:"warn_rate"`         // low confidence or validation failed
	AvgConfidence   float64              `json:"avg_confidence"`    // over results with data
	TemplateHitRate float64              `json:"template_hit_rate"` // share extracted via a template
	WithData        int                  `json:"with_data"`
	PendingFeedback int                  `json:"pending_feedback"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// ResultSource is the archive slice the collector reads.
type ResultSource interface {
	ListResults(ctx context.Context, filter store.ResultFilter) ([]model.DocumentResult, error)
	FeedbackStats(ctx context.Context) (*model.FeedbackStats, error)
}

// maxResults bounds one collection pass.
const maxResults = 10000

// Collector gathers metrics from the result archive and feedback log.
type Collector struct {
	src ResultSource
	now func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(src ResultSource) *Collector {
	return &Collector{src: src, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		ByStatus:      map[model.Status]int{},
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	results, err := c.src.ListResults(ctx, store.ResultFilter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: maxResults,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list results")
	}

	var confSum float64
	var withData, templated int
	for _, r := range results {
		snap.ByStatus[r.Status]++
		if r.Method == model.ModeTemplate {
			templated++
		}
		switch r.Status {
		case model.StatusFailed, model.StatusNoDataExtracted:
		default:
			withData++
			confSum += r.OverallConfidence
		}
	}

	snap.Total = len(results)
	if snap.Total > 0 {
		total := float64(snap.Total)
		snap.FailRate = float64(snap.ByStatus[model.StatusFailed]+snap.ByStatus[model.StatusNoDataExtracted]) / total
		snap.WarnRate = float64(snap.ByStatus[model.StatusLowConfidence]+snap.ByStatus[model.StatusValidationFailed]) / total
		snap.TemplateHitRate = float64(templated) / total
	}
	snap.WithData = withData
	if withData > 0 {
		snap.AvgConfidence = confSum / float64(withData)
	}

	stats, err := c.src.FeedbackStats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: feedback stats")
	}
	snap.PendingFeedback = stats.Total

	return snap, nil
}
