package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/receipt-ocr/internal/config"
	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/monitoring"
	"github.com/sells-group/receipt-ocr/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect archived extraction results",
}

var statsHours int

var resultsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize extraction quality over a recent window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("results"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours := statsHours
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}
		rep, err := qualityReport(ctx, st, cfg.Monitoring, hours)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), rep)
	},
}

// qualityStats is the output of results stats.
type qualityStats struct {
	*monitoring.MetricsSnapshot
	Alerts []monitoring.Alert `json:"alerts"`
}

func qualityReport(ctx context.Context, src monitoring.ResultSource, mc config.MonitoringConfig, hours int) (*qualityStats, error) {
	snap, err := monitoring.NewCollector(src).Collect(ctx, hours)
	if err != nil {
		return nil, err
	}
	alerts := monitoring.NewAlerter(mc).Evaluate(snap)
	if alerts == nil {
		alerts = []monitoring.Alert{}
	}
	return &qualityStats{MetricsSnapshot: snap, Alerts: alerts}, nil
}

// resultFlags are the filter flags shared by results list and export.
type resultFlags struct {
	status string
	since  string
	limit  int
	offset int
}

var listFlags resultFlags

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived results, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("results"); err != nil {
			return err
		}
		filter, err := listFlags.filter()
		if err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		results, err := st.ListResults(ctx, filter)
		if err != nil {
			return err
		}
		if results == nil {
			results = []model.DocumentResult{}
		}
		return writeResult(cmd.OutOrStdout(), results)
	},
}

var resultsGetCmd = &cobra.Command{
	Use:   "get <document-id>",
	Short: "Print one archived result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("results"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := st.GetResult(ctx, args[0])
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), res)
	},
}

func (rf *resultFlags) filter() (store.ResultFilter, error) {
	return parseResultFilter(rf.status, rf.since, rf.limit, rf.offset)
}

func parseResultFilter(status, since string, limit, offset int) (store.ResultFilter, error) {
	f := store.ResultFilter{Status: model.Status(status), Limit: limit, Offset: offset}
	switch f.Status {
	case "", model.StatusSuccess, model.StatusLowConfidence, model.StatusValidationFailed,
		model.StatusNoDataExtracted, model.StatusFailed:
	default:
		return f, eris.Errorf("unknown status %q", status)
	}
	if since != "" {
		t, err := parseSince(since)
		if err != nil {
			return f, err
		}
		f.Since = t
	}
	if limit < 0 || offset < 0 {
		return f, eris.New("limit and offset must be >= 0")
	}
	return f, nil
}

// parseSince accepts an RFC3339 time, a date, or a duration back from now
// such as 24h.
func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return time.Now().UTC().Add(-d), nil
	}
	return time.Time{}, eris.Errorf("invalid --since %q: want RFC3339, YYYY-MM-DD or a duration", s)
}

func (rf *resultFlags) register(cmd *cobra.Command, defaultLimit int) {
	f := cmd.Flags()
	f.StringVar(&rf.status, "status", "", "only results with this status")
	f.StringVar(&rf.since, "since", "", "only results started at or after this time")
	f.IntVar(&rf.limit, "limit", defaultLimit, "max results")
	f.IntVar(&rf.offset, "offset", 0, "results to skip")
}

func init() {
	listFlags.register(resultsListCmd, 100)
	resultsStatsCmd.Flags().IntVar(&statsHours, "hours", 0, "lookback window in hours (default from config)")
	resultsCmd.AddCommand(resultsListCmd, resultsGetCmd, resultsStatsCmd)
	rootCmd.AddCommand(resultsCmd)
}
