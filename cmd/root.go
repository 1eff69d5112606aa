package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	cfgpkg "github.com/KaramelBytes/churnflow-cli/internal/config"
	"github.com/KaramelBytes/churnflow-cli/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	// Observability flags (override config if set)
	flagTrace       bool
	flagMetricsFile string

	// Loaded configuration
	cfg    *cfgpkg.Global
	cfgErr error
)

var rootCmd = &cobra.Command{
	Use:   "churnflow",
	Short: "churnflow: clean churn data and explain churn models",
	Long: `churnflow prepares a customer churn export for training and explains a trained
churn pipeline with TreeSHAP, writing summary and beeswarm plots.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./churnflow.yaml or ~/.churnflow/churnflow.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging on stderr")
	rootCmd.PersistentFlags().BoolVar(&flagTrace, "trace", false, "print OpenTelemetry spans to stderr")
	rootCmd.PersistentFlags().StringVar(&flagMetricsFile, "metrics-file", "", "write Prometheus textfile metrics here after a successful run")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: config show/set still work; stages report cfgErr.
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		cfg, cfgErr = nil, err
		return
	}
	cfg, cfgErr = c, nil

	f := rootCmd.PersistentFlags()
	if f.Changed("trace") {
		cfg.Trace = flagTrace
	}
	if f.Changed("metrics-file") {
		cfg.MetricsFile = flagMetricsFile
	}
}

// stageConfig returns a copy of the loaded config for a stage to finish
// constructing from its own flags.
func stageConfig() (cfgpkg.Global, error) {
	if cfg == nil {
		if cfgErr != nil {
			return cfgpkg.Global{}, fmt.Errorf("no usable configuration: %w", cfgErr)
		}
		return cfgpkg.Global{}, fmt.Errorf("no configuration loaded")
	}
	return *cfg, nil
}

// withTelemetry runs a stage with a run-scoped logger, optional tracing and
// optional textfile metrics.
func withTelemetry(cmd *cobra.Command, c *cfgpkg.Global, fn func(ctx context.Context, log *slog.Logger) error) error {
	if err := c.Validate(); err != nil {
		return err
	}
	runID := telemetry.NewRunID()
	log := telemetry.NewLogger(cmd.ErrOrStderr(), debug).With("run_id", runID, "command", cmd.Name())
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if c.Trace {
		shutdown, err := telemetry.SetupTracing(cmd.ErrOrStderr(), runID)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("flush traces", "err", err)
			}
		}()
	}
	var metrics *telemetry.Metrics
	if c.MetricsFile != "" {
		m, err := telemetry.SetupMetrics(runID)
		if err != nil {
			return err
		}
		metrics = m
		defer func() {
			if err := metrics.Shutdown(context.Background()); err != nil {
				log.Warn("shutdown metrics", "err", err)
			}
		}()
	}

	if err := fn(ctx, log); err != nil {
		return err
	}
	if metrics != nil {
		if err := metrics.WriteTextfile(c.MetricsFile); err != nil {
			return err
		}
		log.Debug("wrote metrics", "path", c.MetricsFile)
	}
	return nil
}
