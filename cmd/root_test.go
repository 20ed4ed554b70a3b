package main

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/receipt-ocr/internal/model"
)

func subcommandNames(c *cobra.Command) map[string]bool {
	names := make(map[string]bool)
	for _, sub := range c.Commands() {
		names[sub.Name()] = true
	}
	return names
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(rootCmd)
	for _, name := range []string{"extract", "batch", "feedback", "retrain", "results", "export", "catalog", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "receipt-ocr", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestFeedbackCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(feedbackCmd)
	for _, name := range []string{"add", "import", "stats"} {
		assert.True(t, names[name], "feedback should have subcommand %q", name)
	}
}

func TestResultsCommand_HasSubcommands(t *testing.T) {
	names := subcommandNames(resultsCmd)
	assert.True(t, names["list"])
	assert.True(t, names["get"])
	assert.True(t, names["stats"])
}

func TestExtractCommand_Flags(t *testing.T) {
	require.NotNil(t, extractCmd.Flags().Lookup("id"))
	flag := extractCmd.Flags().Lookup("no-archive")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "batch command should have --limit flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestFeedbackAddCommand_RequiredFlags(t *testing.T) {
	for _, name := range []string{"field", "raw", "corrected"} {
		flag := feedbackAddCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "feedback add should have --%s flag", name)
		assert.Equal(t, []string{"true"}, flag.Annotations[cobra.BashCompOneRequiredFlag])
	}
}

func TestResultFlags_IndependentDefaults(t *testing.T) {
	assert.Equal(t, "100", resultsListCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, "10000", exportCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, 100, listFlags.limit)
	assert.Equal(t, 10000, exportFlags.limit)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 2, exitCode(&exitError{code: 2, msg: "warn"}))
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status model.Status
		want   int
	}{
		{model.StatusSuccess, 0},
		{model.StatusLowConfidence, 2},
		{model.StatusValidationFailed, 2},
		{model.StatusNoDataExtracted, 1},
		{model.StatusFailed, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			cmd := &cobra.Command{}
			err := statusError(cmd, &model.DocumentResult{Status: tt.status})
			assert.Equal(t, tt.want, exitCode(err))
			assert.Equal(t, tt.want != 0, cmd.SilenceErrors)
		})
	}
}

func TestSetupFailure_HasDocumentID(t *testing.T) {
	res := setupFailure("", "r.png", errors.New("config: invalid"))
	assert.Len(t, res.DocumentID, 36)
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, "r.png", res.ImagePath)
	assert.Contains(t, res.Error, "config: invalid")

	res = setupFailure("doc-7", "r.png", errors.New("boom"))
	assert.Equal(t, "doc-7", res.DocumentID)
}
