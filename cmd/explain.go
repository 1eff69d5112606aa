package cmd

import (
	"context"
	"log/slog"

	"github.com/KaramelBytes/churnflow-cli/internal/explain"
	"github.com/KaramelBytes/churnflow-cli/internal/registry"
	"github.com/spf13/cobra"
)

var (
	exData            string
	exReports         string
	exModelURI        string
	exDPI             int
	exMaxDisplay      int
	exCheckAdditivity bool
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Explain a trained churn pipeline with TreeSHAP",
	Long: `Loads the processed data and the pipeline referenced by MODEL_URI (runs:/<run_id>/model,
models:/<name>/<version>, a path or an http(s) URL), computes TreeSHAP attributions for
the churn class and writes shap_summary.png and shap_beeswarm.png to the reports directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := stageConfig()
		if err != nil {
			return err
		}
		settings, err := registry.LoadSettings()
		if err != nil {
			return err
		}
		if exModelURI != "" {
			settings.ModelURI = exModelURI
		}
		if exData != "" {
			c.ProcessedDataPath = exData
		}
		if exReports != "" {
			c.ReportsDir = exReports
		}
		f := cmd.Flags()
		if f.Changed("dpi") {
			c.PlotDPI = exDPI
		}
		if f.Changed("max-display") {
			c.PlotMaxDisplay = exMaxDisplay
		}
		if f.Changed("check-additivity") {
			c.CheckAdditivity = exCheckAdditivity
		}
		return withTelemetry(cmd, &c, func(ctx context.Context, log *slog.Logger) error {
			_, err := explain.Run(ctx, explain.Params{Config: &c, Settings: &settings, Out: cmd.OutOrStdout(), Logger: log})
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(explainCmd)
	explainCmd.Flags().StringVar(&exData, "data", "", "processed Parquet file (overrides processed_data_path)")
	explainCmd.Flags().StringVar(&exReports, "reports", "", "output directory for plots (overrides reports_dir)")
	explainCmd.Flags().StringVar(&exModelURI, "model-uri", "", "model reference (overrides MODEL_URI)")
	explainCmd.Flags().IntVar(&exDPI, "dpi", 0, "plot resolution (overrides plot_dpi)")
	explainCmd.Flags().IntVar(&exMaxDisplay, "max-display", 0, "features shown per plot (overrides plot_max_display)")
	explainCmd.Flags().BoolVar(&exCheckAdditivity, "check-additivity", false, "fail when attributions do not sum to the model output")
}
