// Package preprocess turns the raw customer export into the cleaned Parquet
// table the training and explainability stages read.
package preprocess

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/KaramelBytes/churnflow-cli/internal/config"
	"github.com/KaramelBytes/churnflow-cli/internal/dataset"
	"github.com/KaramelBytes/churnflow-cli/internal/telemetry"
)

// Params configures one preprocessing run.
type Params struct {
	Config *config.Global
	// Out receives operator-facing progress lines; nil discards them.
	Out    io.Writer
	Logger *slog.Logger
}

// Result summarizes a successful run.
type Result struct {
	RowsIn            int
	RowsOut           int
	DuplicatesRemoved int
	DroppedColumns    []string
	Columns           []string
	OutputPath        string
}

// Run reads the raw table, normalizes the churn label, removes duplicate
// rows and all-empty columns, and writes the result as Parquet. Nothing is
// written unless every step succeeds.
func Run(ctx context.Context, p Params) (res *Result, err error) {
	cfg := p.Config
	if cfg == nil {
		return nil, fmt.Errorf("preprocess: nil config")
	}
	out := p.Out
	if out == nil {
		out = io.Discard
	}
	log := telemetry.OrDefault(p.Logger).With("stage", "preprocess")

	ctx, st := telemetry.StartStage(ctx, "preprocess",
		attribute.String("input", cfg.RawDataPath),
		attribute.String("output", cfg.ProcessedDataPath),
	)
	defer func() { err = st.End(ctx, err) }()

	log.Debug("reading raw data", "path", cfg.RawDataPath)
	tbl, err := dataset.ReadFile(ctx, cfg.RawDataPath, dataset.ReadOptions{Sheet: cfg.XLSXSheet})
	if err != nil {
		return nil, fmt.Errorf("read raw data %s: %w", cfg.RawDataPath, err)
	}
	res = &Result{RowsIn: tbl.NumRows(), OutputPath: cfg.ProcessedDataPath}
	st.Count(ctx, "rows_in", res.RowsIn)

	fmt.Fprintln(out, "\nDetected columns:")
	for _, name := range tbl.Names() {
		fmt.Fprintf(out, "- %s\n", name)
	}

	target, ok := tbl.Column(cfg.TargetColumn)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTargetColumnMissing, cfg.TargetColumn)
	}
	if cfg.LabelColumn != cfg.TargetColumn {
		if _, clash := tbl.Column(cfg.LabelColumn); clash {
			return nil, fmt.Errorf("cannot rename %q to %q: column already exists", cfg.TargetColumn, cfg.LabelColumn)
		}
	}
	label, err := NormalizeLabel(target, cfg.LabelColumn)
	if err != nil {
		return nil, err
	}
	tbl.Rename(cfg.TargetColumn, cfg.LabelColumn)
	if err := tbl.Replace(label); err != nil {
		return nil, err
	}

	tbl, res.DuplicatesRemoved = tbl.DropDuplicateRows()
	tbl, res.DroppedColumns = tbl.DropEmptyColumns()
	res.RowsOut = tbl.NumRows()
	res.Columns = tbl.Names()
	log.Debug("cleaned table",
		"rows_in", res.RowsIn,
		"rows_out", res.RowsOut,
		"duplicates", res.DuplicatesRemoved,
		"dropped_columns", res.DroppedColumns,
	)
	st.Count(ctx, "rows_out", res.RowsOut)
	st.Count(ctx, "duplicates_removed", res.DuplicatesRemoved)
	st.Count(ctx, "columns_dropped", len(res.DroppedColumns))

	if err := dataset.WriteParquet(cfg.ProcessedDataPath, tbl); err != nil {
		return nil, fmt.Errorf("write processed data: %w", err)
	}
	log.Info("wrote processed data", "path", cfg.ProcessedDataPath, "rows", res.RowsOut)

	fmt.Fprintln(out, "\n✓ Preprocessing completed successfully")
	fmt.Fprintf(out, "Final columns: %s\n", strings.Join(res.Columns, ", "))
	return res, nil
}
