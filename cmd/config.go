package cmd

import (
	"fmt"
	"strconv"

	cfgpkg "github.com/KaramelBytes/churnflow-cli/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set churnflow configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(out, "No config loaded")
			return nil
		}
		fmt.Fprintf(out, "raw_data_path: %s\n", cfg.RawDataPath)
		fmt.Fprintf(out, "processed_data_path: %s\n", cfg.ProcessedDataPath)
		fmt.Fprintf(out, "reports_dir: %s\n", cfg.ReportsDir)
		fmt.Fprintf(out, "target_column: %s\n", cfg.TargetColumn)
		fmt.Fprintf(out, "label_column: %s\n", cfg.LabelColumn)
		if cfg.XLSXSheet != "" {
			fmt.Fprintf(out, "xlsx_sheet: %s\n", cfg.XLSXSheet)
		}
		fmt.Fprintf(out, "plot_dpi: %d\n", cfg.PlotDPI)
		fmt.Fprintf(out, "plot_max_display: %d\n", cfg.PlotMaxDisplay)
		fmt.Fprintf(out, "check_additivity: %t\n", cfg.CheckAdditivity)
		if cfg.MetricsFile != "" {
			fmt.Fprintf(out, "metrics_file: %s\n", cfg.MetricsFile)
		}
		fmt.Fprintf(out, "trace: %t\n", cfg.Trace)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		var c cfgpkg.Global
		if cfg != nil {
			c = *cfg
		} else {
			// Start over from defaults so a broken file can be repaired.
			c = cfgpkg.Defaults()
		}
		switch key {
		case "raw_data_path":
			c.RawDataPath = val
		case "processed_data_path":
			c.ProcessedDataPath = val
		case "reports_dir":
			c.ReportsDir = val
		case "target_column":
			c.TargetColumn = val
		case "label_column":
			c.LabelColumn = val
		case "xlsx_sheet":
			c.XLSXSheet = val
		case "plot_dpi":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid plot_dpi: %v", err)
			}
			c.PlotDPI = n
		case "plot_max_display":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid plot_max_display: %v", err)
			}
			c.PlotMaxDisplay = n
		case "check_additivity":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid check_additivity: %v", err)
			}
			c.CheckAdditivity = b
		case "metrics_file":
			c.MetricsFile = val
		case "trace":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid trace: %v", err)
			}
			c.Trace = b
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(&c, cfgFile); err != nil {
			return err
		}
		cfg, cfgErr = &c, nil
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
