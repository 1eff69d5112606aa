package cmd

import (
	"context"
	"log/slog"

	"github.com/KaramelBytes/churnflow-cli/internal/preprocess"
	"github.com/spf13/cobra"
)

var (
	ppInput  string
	ppOutput string
	ppTarget string
	ppLabel  string
	ppSheet  string
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Clean the raw churn export and write it as Parquet",
	Long: `Reads the raw export (CSV, TSV or XLSX), renames the target column to the label
name, maps yes/no/true/false labels to 1/0, drops duplicate rows and empty
columns, and writes the processed Parquet file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := stageConfig()
		if err != nil {
			return err
		}
		if ppInput != "" {
			c.RawDataPath = ppInput
		}
		if ppOutput != "" {
			c.ProcessedDataPath = ppOutput
		}
		if ppTarget != "" {
			c.TargetColumn = ppTarget
		}
		if ppLabel != "" {
			c.LabelColumn = ppLabel
		}
		if ppSheet != "" {
			c.XLSXSheet = ppSheet
		}
		return withTelemetry(cmd, &c, func(ctx context.Context, log *slog.Logger) error {
			_, err := preprocess.Run(ctx, preprocess.Params{Config: &c, Out: cmd.OutOrStdout(), Logger: log})
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(preprocessCmd)
	preprocessCmd.Flags().StringVarP(&ppInput, "input", "i", "", "raw data file (overrides raw_data_path)")
	preprocessCmd.Flags().StringVarP(&ppOutput, "output", "o", "", "processed Parquet file (overrides processed_data_path)")
	preprocessCmd.Flags().StringVar(&ppTarget, "target", "", "raw churn column (overrides target_column)")
	preprocessCmd.Flags().StringVar(&ppLabel, "label", "", "label column name to write (overrides label_column)")
	preprocessCmd.Flags().StringVar(&ppSheet, "sheet", "", "worksheet to read from an .xlsx input")
}
