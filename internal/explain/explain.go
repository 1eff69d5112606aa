// Package explain attributes churn predictions to input features with
// TreeSHAP and renders the summary and beeswarm reports.
package explain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KaramelBytes/churnflow-cli/internal/config"
	"github.com/KaramelBytes/churnflow-cli/internal/dataset"
	"github.com/KaramelBytes/churnflow-cli/internal/model"
	"github.com/KaramelBytes/churnflow-cli/internal/registry"
	"github.com/KaramelBytes/churnflow-cli/internal/render"
	"github.com/KaramelBytes/churnflow-cli/internal/telemetry"
	"github.com/KaramelBytes/churnflow-cli/internal/utils"
)

const (
	SummaryFile  = "shap_summary.png"
	BeeswarmFile = "shap_beeswarm.png"
	// PositiveClass is the output explained for multi-output models.
	PositiveClass = 1
	// additivityTolerance is relative to the model output magnitude.
	additivityTolerance = 1e-6
)

// ErrUnsupportedClassifier is returned for models without tree structure.
var ErrUnsupportedClassifier = errors.New("classifier is not tree based; TreeSHAP cannot explain it")

// Params configures one explainability run.
type Params struct {
	Config *config.Global
	// Settings overrides the MODEL_* environment when set.
	Settings *registry.Settings
	Out      io.Writer
	Logger   *slog.Logger
}

// Result summarizes a successful run.
type Result struct {
	Rows         int
	FeatureNames []string
	Importance   []render.Ranked
	Expected     float64
	SummaryPath  string
	BeeswarmPath string
}

// Run loads the cleaned table and the model referenced by MODEL_URI,
// computes attributions for the positive class and writes both plots.
func Run(ctx context.Context, p Params) (res *Result, err error) {
	cfg := p.Config
	if cfg == nil {
		return nil, fmt.Errorf("explain: nil config")
	}
	out := p.Out
	if out == nil {
		out = io.Discard
	}
	log := telemetry.OrDefault(p.Logger).With("stage", "explain")

	var settings registry.Settings
	if p.Settings != nil {
		settings = *p.Settings
	} else if settings, err = registry.LoadSettings(); err != nil {
		return nil, err
	}
	if err := settings.RequireModelURI(); err != nil {
		return nil, err
	}

	ctx, st := telemetry.StartStage(ctx, "explain",
		attribute.String("input", cfg.ProcessedDataPath),
		attribute.String("model_uri", settings.ModelURI),
	)
	defer func() { err = st.End(ctx, err) }()

	tbl, err := dataset.ReadParquet(ctx, cfg.ProcessedDataPath)
	if err != nil {
		return nil, fmt.Errorf("read processed data %s: %w", cfg.ProcessedDataPath, err)
	}
	if _, ok := tbl.Column(cfg.LabelColumn); !ok {
		return nil, fmt.Errorf("label column %q not found in %s", cfg.LabelColumn, cfg.ProcessedDataPath)
	}
	features := tbl.Without(cfg.LabelColumn)
	if features.NumRows() == 0 {
		return nil, fmt.Errorf("%s has no rows to explain", cfg.ProcessedDataPath)
	}
	st.Count(ctx, "rows_in", features.NumRows())

	log.Debug("loading model", "uri", settings.ModelURI)
	pipe, err := registry.Load(ctx, settings.ModelURI, settings)
	if err != nil {
		return nil, err
	}

	X, err := pipe.Preprocess.Transform(features)
	if err != nil {
		return nil, fmt.Errorf("transform features: %w", err)
	}
	width := 0
	if len(X) > 0 {
		width = len(X[0])
	}
	names := featureNames(pipe.Preprocess, width, log)

	tm, ok := pipe.Classifier.(model.TreeModel)
	if !ok {
		return nil, fmt.Errorf("%w (step %q)", ErrUnsupportedClassifier, model.ModelStep)
	}
	ens := tm.Ensemble()
	if ens.NumFeatures != width {
		return nil, fmt.Errorf("preprocessing yields %d features, model expects %d", width, ens.NumFeatures)
	}

	attr, err := TreeSHAP(ens, X)
	if err != nil {
		return nil, fmt.Errorf("compute attributions: %w", err)
	}
	if cfg.CheckAdditivity {
		if err := CheckAdditivity(ens, X, attr, additivityTolerance); err != nil {
			return nil, err
		}
	}
	values, expected, err := attr.Select(PositiveClass)
	if err != nil {
		return nil, err
	}
	st.Count(ctx, "features_explained", width)
	log.Debug("computed attributions", "rows", len(X), "features", width, "outputs", attr.NumOutputs())

	if err := utils.EnsureDir(cfg.ReportsDir); err != nil {
		return nil, err
	}
	opt := render.Options{DPI: cfg.PlotDPI, MaxDisplay: cfg.PlotMaxDisplay}
	res = &Result{
		Rows:         len(X),
		FeatureNames: names,
		Importance:   render.Rank(names, values),
		Expected:     expected,
		SummaryPath:  filepath.Join(cfg.ReportsDir, SummaryFile),
		BeeswarmPath: filepath.Join(cfg.ReportsDir, BeeswarmFile),
	}
	if err := render.Summary(res.SummaryPath, names, values, opt); err != nil {
		return nil, fmt.Errorf("render summary plot: %w", err)
	}
	if err := render.Beeswarm(res.BeeswarmPath, names, values, X, opt); err != nil {
		return nil, fmt.Errorf("render beeswarm plot: %w", err)
	}
	log.Info("wrote reports", "dir", cfg.ReportsDir)

	fmt.Fprintln(out, "\n✓ SHAP explainability completed successfully")
	fmt.Fprintf(out, "Outputs saved in %s\n", cfg.ReportsDir)
	return res, nil
}

// featureNames asks the transformer for output names and falls back to
// feature_0..feature_{n-1} when it cannot name them.
func featureNames(t model.Transformer, width int, log *slog.Logger) []string {
	if fn, ok := t.(model.FeatureNamer); ok {
		names, err := fn.FeatureNames()
		if err == nil && len(names) == width {
			return names
		}
		log.Debug("falling back to positional feature names", "err", err, "names", len(names), "width", width)
	}
	out := make([]string, width)
	for i := range out {
		out[i] = fmt.Sprintf("feature_%d", i)
	}
	return out
}
