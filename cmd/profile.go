package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/KaramelBytes/churnflow-cli/internal/dataset"
	"github.com/KaramelBytes/churnflow-cli/internal/profile"
	"github.com/KaramelBytes/churnflow-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	profOutputPath string
	profSheetName  string
	profSampleRows int
	profTopValues  int
)

var profileCmd = &cobra.Command{
	Use:   "profile [file]",
	Short: "Summarize a churn dataset (schema, churn rates, label correlations)",
	Long: `Profiles a CSV, TSV, XLSX or Parquet file. Without an argument the processed
dataset from the configuration is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := stageConfig()
		if err != nil {
			return err
		}
		path := c.ProcessedDataPath
		if len(args) == 1 {
			path = args[0]
		}
		sheet := c.XLSXSheet
		if profSheetName != "" {
			sheet = profSheetName
		}
		tbl, err := dataset.ReadFile(cmd.Context(), path, dataset.ReadOptions{Sheet: sheet})
		if err != nil {
			return err
		}

		opt := profile.DefaultOptions()
		opt.LabelColumn = c.LabelColumn
		if profSampleRows > 0 {
			opt.SampleRows = profSampleRows
		}
		if profTopValues > 0 {
			opt.TopValues = profTopValues
		}
		rep, err := profile.Build(filepath.Base(path), tbl, opt)
		if err != nil {
			return err
		}
		md := rep.Markdown()

		if profOutputPath == "" {
			fmt.Fprint(cmd.OutOrStdout(), md)
			return nil
		}
		if err := utils.EnsureParentDir(profOutputPath); err != nil {
			return err
		}
		if err := utils.SafeWriteFile(profOutputPath, []byte(md)); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote profile to %s\n", profOutputPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().StringVarP(&profOutputPath, "output", "o", "", "write the profile to a file instead of stdout")
	profileCmd.Flags().StringVar(&profSheetName, "sheet", "", "worksheet to read from an .xlsx input")
	profileCmd.Flags().IntVar(&profSampleRows, "sample-rows", 0, "number of head rows to include (default 5)")
	profileCmd.Flags().IntVar(&profTopValues, "top", 0, "categories listed per column (default 5)")
}
