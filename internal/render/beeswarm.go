package render

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const (
	beeBins     = 100
	beeRowWidth = 0.8
)

var (
	missingColor = color.RGBA{R: 0x77, G: 0x77, B: 0x77, A: 0xff}
	zeroColor    = color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
	colorBarSize = 0.9 * vg.Inch
)

// Beeswarm writes one row of dots per feature, one dot per sample, placed
// at its attribution and colored by the feature value from low (blue) to
// high (red). Missing feature values are grey.
func Beeswarm(path string, names []string, values, features [][]float64, opt Options) error {
	if err := checkShape(names, values); err != nil {
		return err
	}
	if len(features) != len(values) {
		return fmt.Errorf("%d feature rows for %d attribution rows", len(features), len(values))
	}
	opt = opt.withDefaults()
	shown := top(Rank(names, values), opt.MaxDisplay)
	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(0)
	cmap.SetMax(1)

	p := newPlot("SHAP values", "SHAP value (impact on model output)")
	labels := make([]string, len(shown))
	for row, f := range shown {
		labels[row] = f.Name
		phi := make([]float64, len(values))
		raw := make([]float64, len(values))
		for i := range values {
			phi[i] = values[i][f.Index]
			raw[i] = features[i][f.Index]
		}
		offsets := swarmOffsets(phi)
		pts := make(plotter.XYs, len(phi))
		for i := range phi {
			pts[i] = plotter.XY{X: phi[i], Y: float64(row) + offsets[i]}
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("scatter %s: %w", f.Name, err)
		}
		shade := colorScale(raw)
		s.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			c := color.Color(missingColor)
			if v := shade(i); !math.IsNaN(v) {
				if mc, err := cmap.At(v); err == nil {
					c = mc
				}
			}
			return draw.GlyphStyle{Color: c, Radius: vg.Points(1.6), Shape: draw.CircleGlyph{}}
		}
		p.Add(s)
	}
	zero, err := plotter.NewLine(plotter.XYs{{X: 0, Y: -0.5}, {X: 0, Y: float64(len(shown)) - 0.5}})
	if err != nil {
		return err
	}
	zero.Color = zeroColor
	zero.Width = vg.Points(0.5)
	p.Add(zero)
	p.NominalY(labels...)

	bar := colorBarPlot(cmap)
	h := opt.height(len(shown))
	return savePNG(path, opt.Width, h, opt.DPI, func(dc draw.Canvas) {
		width := dc.Max.X - dc.Min.X
		p.Draw(draw.Crop(dc, 0, -colorBarSize, 0, 0))
		bar.Draw(draw.Crop(dc, width-colorBarSize, 0, 0, 0))
	})
}

func colorBarPlot(cmap palette.ColorMap) *plot.Plot {
	p := plot.New()
	p.Add(&plotter.ColorBar{ColorMap: cmap, Vertical: true})
	p.HideX()
	p.Y.Label.Text = "Feature value"
	p.Y.Tick.Marker = plot.ConstantTicks{{Value: 0, Label: "Low"}, {Value: 1, Label: "High"}}
	return p
}

// colorScale maps each raw value into [0,1] between the 5th and 95th
// percentile of the present values, so outliers do not wash out the
// palette. Missing values map to NaN.
func colorScale(raw []float64) func(i int) float64 {
	present := make([]float64, 0, len(raw))
	for _, v := range raw {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return func(int) float64 { return math.NaN() }
	}
	sort.Float64s(present)
	lo := stat.Quantile(0.05, stat.Empirical, present, nil)
	hi := stat.Quantile(0.95, stat.Empirical, present, nil)
	if hi <= lo {
		lo, hi = present[0], present[len(present)-1]
	}
	return func(i int) float64 {
		v := raw[i]
		if math.IsNaN(v) {
			return v
		}
		if hi <= lo {
			return 0.5
		}
		return math.Min(1, math.Max(0, (v-lo)/(hi-lo)))
	}
}

// swarmOffsets spreads dots with similar attributions vertically. Values
// are binned along x; the k-th dot in a bin goes alternately above and
// below the row center, and the whole row is scaled to fit its band.
func swarmOffsets(phi []float64) []float64 {
	n := len(phi)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	lo, hi := phi[0], phi[0]
	for _, v := range phi {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return phi[order[a]] < phi[order[b]] })

	counts := make([]int, beeBins+1)
	maxLayer := 0.0
	for _, i := range order {
		bin := 0
		if hi > lo {
			bin = int(math.Round((phi[i] - lo) / (hi - lo) * beeBins))
		}
		k := counts[bin]
		counts[bin]++
		layer := math.Ceil(float64(k) / 2)
		if k%2 == 1 {
			layer = -layer
		}
		out[i] = layer
		maxLayer = math.Max(maxLayer, math.Abs(layer))
	}
	if maxLayer > 0 {
		scale := beeRowWidth / 2 / maxLayer
		for i := range out {
			out[i] *= scale
		}
	}
	return out
}
