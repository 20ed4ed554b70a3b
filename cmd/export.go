package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-ocr/internal/catalog"
	"github.com/sells-group/receipt-ocr/internal/sheets"
)

var exportFlags resultFlags

var exportCmd = &cobra.Command{
	Use:   "export <out.xlsx|out.csv>",
	Short: "Write archived results to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("export"); err != nil {
			return err
		}
		filter, err := exportFlags.filter()
		if err != nil {
			return err
		}
		fields, err := catalog.LoadFields(cfg.Catalog.FieldsFile)
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
		if err := sheets.ExportResults(args[0], fields, results); err != nil {
			return err
		}

		zap.L().With(zap.String("command", "export")).Info("results exported",
			zap.String("file", args[0]),
			zap.Int("rows", len(results)),
		)
		return nil
	},
}

func init() {
	exportFlags.register(exportCmd, 10000)
	rootCmd.AddCommand(exportCmd)
}
