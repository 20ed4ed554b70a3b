package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/pipeline"
)

var (
	extractID        string
	extractNoArchive bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Extract fields from one receipt image",
	Long:  "Prints one result document as JSON. Exits 0 on success, 2 on low confidence or failed validation, 1 otherwise.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := args[0]
		log := zap.L().With(zap.String("command", "extract"))

		var res *model.DocumentResult
		env, err := initExtract(ctx, "extract", !extractNoArchive)
		if err != nil {
			log.Error("extraction setup failed", zap.Error(err))
			res = setupFailure(extractID, path, err)
		} else {
			defer env.Close()
			res = env.Pipeline.Process(ctx, path, extractID)
		}

		if err := writeResult(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		return statusError(cmd, res)
	},
}

// setupFailure is the result printed when the pipeline cannot be built.
// It carries a document id like any processed result.
func setupFailure(id, path string, err error) *model.DocumentResult {
	return model.FailedResult(pipeline.DocumentID(id), path, time.Now().UTC(), err)
}

func writeResult(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write result")
}

// statusError maps a result status to the process exit code. The result is
// already on stdout, so cobra's error and usage output are suppressed.
func statusError(cmd *cobra.Command, res *model.DocumentResult) error {
	code := res.Status.ExitCode()
	if code == 0 {
		return nil
	}
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return &exitError{code: code, msg: "extract: status " + string(res.Status)}
}

func init() {
	extractCmd.Flags().StringVar(&extractID, "id", "", "document id (default random)")
	extractCmd.Flags().BoolVar(&extractNoArchive, "no-archive", false, "do not save the result to the store")
	rootCmd.AddCommand(extractCmd)
}
