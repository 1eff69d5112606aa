// Package render draws attribution plots as PNG files.
package render

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/KaramelBytes/churnflow-cli/internal/utils"
)

// Options controls image size and how many features are shown.
type Options struct {
	DPI        int
	MaxDisplay int
	Width      vg.Length
}

// DefaultOptions renders 8in wide images at 200 DPI with at most 20 features.
func DefaultOptions() Options {
	return Options{DPI: 200, MaxDisplay: 20, Width: 8 * vg.Inch}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DPI <= 0 {
		o.DPI = d.DPI
	}
	if o.MaxDisplay <= 0 {
		o.MaxDisplay = d.MaxDisplay
	}
	if o.Width <= 0 {
		o.Width = d.Width
	}
	return o
}

// height grows with the number of displayed features.
func (o Options) height(features int) vg.Length {
	return vg.Length(math.Max(3, 0.4*float64(features)+1.5)) * vg.Inch
}

// Ranked is a feature with its mean absolute attribution.
type Ranked struct {
	Index   int
	Name    string
	MeanAbs float64
}

// Rank orders features by mean |attribution| over rows, largest first.
// Ties keep input order.
func Rank(names []string, values [][]float64) []Ranked {
	out := make([]Ranked, len(names))
	for j, n := range names {
		out[j] = Ranked{Index: j, Name: n}
	}
	if len(values) > 0 {
		for _, row := range values {
			for j := range out {
				out[j].MeanAbs += math.Abs(row[j])
			}
		}
		for j := range out {
			out[j].MeanAbs /= float64(len(values))
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].MeanAbs > out[b].MeanAbs })
	return out
}

// top returns at most n ranked features, least important first, which is
// bottom-to-top plotting order.
func top(r []Ranked, n int) []Ranked {
	if len(r) > n {
		r = r[:n]
	}
	out := make([]Ranked, len(r))
	for i, f := range r {
		out[len(r)-1-i] = f
	}
	return out
}

func checkShape(names []string, values [][]float64) error {
	if len(names) == 0 {
		return fmt.Errorf("no features to plot")
	}
	for i, row := range values {
		if len(row) != len(names) {
			return fmt.Errorf("row %d: %d attributions for %d features", i, len(row), len(names))
		}
	}
	return nil
}

// savePNG renders draw into a w x h canvas at dpi and writes it atomically.
func savePNG(path string, w, h vg.Length, dpi int, drawFn func(dc draw.Canvas)) error {
	c := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))
	drawFn(draw.New(c))
	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if err := utils.EnsureParentDir(path); err != nil {
		return err
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

func newPlot(title, xlabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Tick.Label.Font.Size = vg.Points(9)
	return p
}
