package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/correction"
)

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Fold pending corrections into the correction model",
	Long:  "Applies every pending feedback entry to the correction model, saves it, archives the batch and prints the retraining report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("retrain"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := runRetrain(ctx, st, cfg.Correction.ModelPath, cfg.Correction.LockPath)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), rep)
	},
}

// runRetrain holds the model lock for the whole load, apply, save and
// archive cycle.
func runRetrain(ctx context.Context, log correction.FeedbackLog, modelPath, lockPath string) (*correction.Report, error) {
	if lockPath == "" {
		lockPath = modelPath + ".lock"
	}
	lock, err := correction.AcquireLock(lockPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			zap.L().Warn("release model lock", zap.Error(err))
		}
	}()

	m, err := correction.Load(modelPath)
	if err != nil {
		return nil, err
	}
	return correction.NewRetrainer(log, m, modelPath).Run(ctx)
}

func init() {
	rootCmd.AddCommand(retrainCmd)
}
