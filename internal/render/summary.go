package render

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var barColor = color.RGBA{R: 0x00, G: 0x8b, B: 0xe5, A: 0xff}

// Summary writes a horizontal bar chart of mean |attribution| per feature,
// most important at the top.
func Summary(path string, names []string, values [][]float64, opt Options) error {
	if err := checkShape(names, values); err != nil {
		return err
	}
	opt = opt.withDefaults()
	shown := top(Rank(names, values), opt.MaxDisplay)

	bars := make(plotter.Values, len(shown))
	labels := make([]string, len(shown))
	for i, f := range shown {
		bars[i] = f.MeanAbs
		labels[i] = f.Name
	}
	p := newPlot("Feature importance", "mean(|SHAP value|) (average impact on model output magnitude)")
	bc, err := plotter.NewBarChart(bars, vg.Points(12))
	if err != nil {
		return fmt.Errorf("bar chart: %w", err)
	}
	bc.Horizontal = true
	bc.Color = barColor
	bc.LineStyle.Width = 0
	p.Add(bc)
	p.NominalY(labels...)
	p.X.Min = 0

	return savePNG(path, opt.Width, opt.height(len(shown)), opt.DPI, func(dc draw.Canvas) {
		p.Draw(dc)
	})
}
