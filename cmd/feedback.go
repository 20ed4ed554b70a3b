package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/sheets"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record and inspect operator corrections",
}

var (
	fbImageID   string
	fbField     string
	fbRaw       string
	fbCorrected string
	fbCause     string
)

var feedbackAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record one correction",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("feedback"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		added, err := st.AddFeedback(ctx, model.FeedbackEntry{
			ImageID:        fbImageID,
			FieldName:      fbField,
			RawOCROutput:   fbRaw,
			CorrectedValue: fbCorrected,
			RootCause:      model.RootCause(fbCause),
		})
		if err != nil {
			return err
		}
		zap.L().With(zap.String("command", "feedback add")).Info("feedback recorded",
			zap.String("id", added[0].ID),
			zap.String("field", added[0].FieldName),
		)
		return writeResult(cmd.OutOrStdout(), added[0])
	},
}

var feedbackImportCmd = &cobra.Command{
	Use:   "import <file.csv|file.xlsx>",
	Short: "Record corrections from a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("feedback"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := importFeedback(ctx, st, args[0])
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), map[string]int{"imported": n})
	},
}

var feedbackStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize pending corrections by field and root cause",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("feedback"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.FeedbackStats(ctx)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), stats)
	},
}

type feedbackAdder interface {
	AddFeedback(ctx context.Context, entries ...model.FeedbackEntry) ([]model.FeedbackEntry, error)
}

// importFeedback reads a feedback sheet and records every entry in one
// batch. Nothing is recorded if any row is invalid.
func importFeedback(ctx context.Context, st feedbackAdder, path string) (int, error) {
	log := zap.L().With(zap.String("command", "feedback import"), zap.String("file", path))

	entries, err := sheets.ReadFeedback(ctx, path)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		log.Info("no feedback rows found")
		return 0, nil
	}

	added, err := st.AddFeedback(ctx, entries...)
	if err != nil {
		return 0, eris.Wrapf(err, "import %s", path)
	}
	log.Info("feedback imported", zap.Int("entries", len(added)))
	return len(added), nil
}

func init() {
	f := feedbackAddCmd.Flags()
	f.StringVar(&fbImageID, "image-id", "", "id of the corrected image")
	f.StringVar(&fbField, "field", "", "field name")
	f.StringVar(&fbRaw, "raw", "", "raw OCR output as extracted")
	f.StringVar(&fbCorrected, "corrected", "", "corrected value")
	f.StringVar(&fbCause, "cause", "", "root cause, e.g. caracter_mal_reconocido")
	_ = feedbackAddCmd.MarkFlagRequired("field")
	_ = feedbackAddCmd.MarkFlagRequired("raw")
	_ = feedbackAddCmd.MarkFlagRequired("corrected")

	feedbackCmd.AddCommand(feedbackAddCmd, feedbackImportCmd, feedbackStatsCmd)
	rootCmd.AddCommand(feedbackCmd)
}
