package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/churnflow-cli/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so invocations do not leak
// Changed state or bound values into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd is a helper to execute the root command with args. It returns the
// command's stdout and error.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg, cfgErr = nil, nil
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"MODEL_URI", "MODEL_REGISTRY_DIR", "MODEL_FETCH_TIMEOUT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return home
}

func TestCLI_PreprocessThenExplain(t *testing.T) {
	home := isolate(t)
	raw := testutil.WriteFile(t, home, "data/raw/churn.csv", []byte(testutil.RawCSV))
	processed := filepath.Join(home, "data", "processed", "churn.parquet")
	reports := filepath.Join(home, "reports")
	metrics := filepath.Join(home, "metrics", "churnflow.prom")
	testutil.WriteFile(t, home, "mlruns/0/run42/artifacts/model/pipeline.json", testutil.ForestPipeline(t))
	t.Setenv("MODEL_REGISTRY_DIR", filepath.Join(home, "mlruns"))
	t.Setenv("MODEL_URI", "runs:/run42/model")

	out, err := runCmd(t, "preprocess", "--input", raw, "--output", processed)
	if err != nil {
		t.Fatalf("preprocess failed: %v", err)
	}
	for _, want := range []string{"Detected columns:", "- Target_Churn", "✓ Preprocessing completed successfully"} {
		if !strings.Contains(out, want) {
			t.Fatalf("preprocess output missing %q:\n%s", want, out)
		}
	}
	if _, err := os.Stat(processed); err != nil {
		t.Fatalf("expected parquet output: %v", err)
	}

	out, err = runCmd(t, "explain", "--data", processed, "--reports", reports, "--metrics-file", metrics)
	if err != nil {
		t.Fatalf("explain failed: %v", err)
	}
	if !strings.Contains(out, "✓ SHAP explainability completed successfully") {
		t.Fatalf("explain output missing confirmation:\n%s", out)
	}
	for _, name := range []string{"shap_summary.png", "shap_beeswarm.png"} {
		if _, err := os.Stat(filepath.Join(reports, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
	b, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("expected metrics file: %v", err)
	}
	if !strings.Contains(string(b), `stage="explain"`) {
		t.Fatalf("metrics missing explain stage:\n%s", b)
	}
}

func TestCLI_ExplainRequiresModelURI(t *testing.T) {
	home := isolate(t)
	processed := filepath.Join(home, "churn.parquet")
	reports := filepath.Join(home, "reports")

	_, err := runCmd(t, "explain", "--data", processed, "--reports", reports)
	if err == nil || !strings.Contains(err.Error(), "MODEL_URI not set") {
		t.Fatalf("expected missing MODEL_URI error, got %v", err)
	}
	if _, statErr := os.Stat(reports); !os.IsNotExist(statErr) {
		t.Fatalf("reports dir should not be created, stat err=%v", statErr)
	}
}

func TestCLI_PreprocessMissingTarget(t *testing.T) {
	home := isolate(t)
	raw := testutil.WriteFile(t, home, "raw.csv", []byte("id,plan\n1,basic\n"))
	processed := filepath.Join(home, "out.parquet")

	_, err := runCmd(t, "preprocess", "--input", raw, "--output", processed)
	if err == nil || !strings.Contains(err.Error(), "Target_Churn") {
		t.Fatalf("expected missing target error, got %v", err)
	}
	if _, statErr := os.Stat(processed); !os.IsNotExist(statErr) {
		t.Fatalf("no output expected, stat err=%v", statErr)
	}
}

func TestCLI_ConfigSetShow(t *testing.T) {
	home := isolate(t)
	cfgPath := filepath.Join(home, "churnflow.yaml")

	// The file does not exist yet; set starts from defaults and creates it.
	if _, err := runCmd(t, "--config", cfgPath, "config", "set", "reports_dir", "out/plots"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	if _, err := runCmd(t, "--config", cfgPath, "config", "set", "plot_dpi", "300"); err != nil {
		t.Fatalf("config set failed: %v", err)
	}
	out, err := runCmd(t, "--config", cfgPath, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"reports_dir: out/plots", "plot_dpi: 300", "target_column: Target_Churn"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config show missing %q:\n%s", want, out)
		}
	}

	if _, err := runCmd(t, "--config", cfgPath, "config", "set", "plot_dpi", "5"); err == nil {
		t.Fatalf("expected out-of-range plot_dpi to be rejected")
	}
	if _, err := runCmd(t, "--config", cfgPath, "config", "set", "nope", "1"); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestCLI_ProfileProcessedData(t *testing.T) {
	home := isolate(t)
	processed := filepath.Join(home, "churn.parquet")
	testutil.WriteCleanParquet(t, processed)

	out, err := runCmd(t, "profile", processed)
	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}
	for _, want := range []string{"File: churn.parquet", "Churn rate: 50.0%", "[CHURN RATE BY CATEGORY]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("profile output missing %q:\n%s", want, out)
		}
	}

	md := filepath.Join(home, "reports", "profile.md")
	out, err = runCmd(t, "profile", processed, "--output", md)
	if err != nil {
		t.Fatalf("profile --output failed: %v", err)
	}
	if !strings.Contains(out, "✓ Wrote profile to") {
		t.Fatalf("unexpected output: %s", out)
	}
	if _, err := os.Stat(md); err != nil {
		t.Fatalf("expected profile file: %v", err)
	}
}
