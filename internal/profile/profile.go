// Package profile summarizes a churn table: per-column schema and statistics,
// churn rate per category, and correlation of numeric columns with the label.
package profile

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/churnflow-cli/internal/dataset"
)

// Options controls profiling.
type Options struct {
	// LabelColumn enables churn-rate groups and label correlations when present.
	LabelColumn string
	// TopValues limits the categories listed per column.
	TopValues int
	// SampleRows determines how many leading rows to include in the report.
	SampleRows int
	// MaxGroupValues skips group-by for columns with more distinct values.
	MaxGroupValues int
}

// DefaultOptions returns reasonable defaults for a churn table.
func DefaultOptions() Options {
	return Options{
		LabelColumn:    "churn",
		TopValues:      5,
		SampleRows:     5,
		MaxGroupValues: 20,
	}
}

// Report is a markdown-friendly profile of a table.
type Report struct {
	Name     string
	Rows     int
	Cols     []ColumnSummary
	Groups   []GroupResult
	Corr     []LabelCorr
	Samples  [][]string
	Warnings []string
	// ChurnRate is the share of rows labelled 1; NaN without a label column.
	ChurnRate float64
}

// ColumnSummary captures the kind and statistics of one column.
type ColumnSummary struct {
	Name    string
	Kind    string // numeric|boolean|categorical
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min  float64
	Max  float64
	Mean float64
	Std  float64
	// Categorical top values
	TopValues []CategoryCount
}

type CategoryCount struct {
	Value string
	Count int
}

// GroupResult is the churn rate for one value of a categorical column.
type GroupResult struct {
	Column    string
	Value     string
	Size      int
	ChurnRate float64
}

// LabelCorr is the Pearson correlation of a numeric column with the label.
type LabelCorr struct {
	Column string
	R      float64
	N      int
}

// Build profiles t. name is only used as the report title.
func Build(name string, t *dataset.Table, opt Options) (*Report, error) {
	if t == nil {
		return nil, fmt.Errorf("profile: nil table")
	}
	if opt.TopValues <= 0 {
		opt.TopValues = DefaultOptions().TopValues
	}
	r := &Report{Name: name, Rows: t.NumRows(), ChurnRate: math.NaN()}

	var label []float64
	if opt.LabelColumn != "" {
		if lc, ok := t.Column(opt.LabelColumn); ok {
			label = labelValues(lc)
			r.ChurnRate = mean(label)
		} else {
			r.Warnings = append(r.Warnings, fmt.Sprintf("label column %q not present; churn rates skipped", opt.LabelColumn))
		}
	}

	for _, c := range t.Columns {
		s := summarize(c, opt.TopValues)
		r.Cols = append(r.Cols, s)
		if s.Missing > 0 && s.NonNull == 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("column %q is entirely missing", c.Name))
		}
		if label == nil || c.Name == opt.LabelColumn {
			continue
		}
		switch s.Kind {
		case "numeric":
			if lc, ok := correlate(c, label); ok {
				r.Corr = append(r.Corr, lc)
			}
		default:
			if opt.MaxGroupValues > 0 && s.Unique > opt.MaxGroupValues {
				continue
			}
			r.Groups = append(r.Groups, groupRates(c, label)...)
		}
	}
	sort.SliceStable(r.Corr, func(i, j int) bool {
		return math.Abs(r.Corr[i].R) > math.Abs(r.Corr[j].R)
	})

	n := opt.SampleRows
	if n > r.Rows {
		n = r.Rows
	}
	for i := 0; i < n; i++ {
		row := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			row[j] = c.Text(i)
		}
		r.Samples = append(r.Samples, row)
	}
	return r, nil
}

func kindOf(c *dataset.Column) string {
	switch c.Kind {
	case dataset.KindInt, dataset.KindFloat:
		return "numeric"
	case dataset.KindBool:
		return "boolean"
	default:
		return "categorical"
	}
}

func summarize(c *dataset.Column, top int) ColumnSummary {
	s := ColumnSummary{Name: c.Name, Kind: kindOf(c)}
	counts := map[string]int{}
	var nums []float64
	for i := 0; i < c.Len(); i++ {
		if c.IsNull(i) {
			s.Missing++
			continue
		}
		s.NonNull++
		counts[c.Text(i)]++
		if s.Kind == "numeric" {
			v, _ := c.Float(i)
			nums = append(nums, v)
		}
	}
	s.Unique = len(counts)
	if len(nums) > 0 {
		s.Min, s.Max = nums[0], nums[0]
		for _, v := range nums {
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}
		s.Mean, s.Std = stat.MeanStdDev(nums, nil)
		if len(nums) < 2 {
			s.Std = 0
		}
	}
	if s.Kind != "numeric" {
		for v, n := range counts {
			s.TopValues = append(s.TopValues, CategoryCount{Value: v, Count: n})
		}
		sort.Slice(s.TopValues, func(i, j int) bool {
			if s.TopValues[i].Count == s.TopValues[j].Count {
				return s.TopValues[i].Value < s.TopValues[j].Value
			}
			return s.TopValues[i].Count > s.TopValues[j].Count
		})
		if len(s.TopValues) > top {
			s.TopValues = s.TopValues[:top]
		}
	}
	return s
}

// labelValues returns the label as 0/1 floats; missing labels are NaN.
func labelValues(c *dataset.Column) []float64 {
	out := make([]float64, c.Len())
	for i := range out {
		v, ok := c.Float(i)
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

func mean(vals []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func correlate(c *dataset.Column, label []float64) (LabelCorr, bool) {
	var xs, ys []float64
	for i := 0; i < c.Len(); i++ {
		x, ok := c.Float(i)
		if !ok || math.IsNaN(label[i]) {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, label[i])
	}
	if len(xs) < 2 {
		return LabelCorr{}, false
	}
	r := stat.Correlation(xs, ys, nil)
	if math.IsNaN(r) {
		// constant column or label
		return LabelCorr{}, false
	}
	return LabelCorr{Column: c.Name, R: r, N: len(xs)}, true
}

func groupRates(c *dataset.Column, label []float64) []GroupResult {
	type acc struct{ n, pos, labelled int }
	by := map[string]*acc{}
	for i := 0; i < c.Len(); i++ {
		key := "(missing)"
		if !c.IsNull(i) {
			key = c.Text(i)
		}
		a := by[key]
		if a == nil {
			a = &acc{}
			by[key] = a
		}
		a.n++
		if !math.IsNaN(label[i]) {
			a.labelled++
			if label[i] == 1 {
				a.pos++
			}
		}
	}
	keys := make([]string, 0, len(by))
	for k := range by {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]GroupResult, 0, len(keys))
	for _, k := range keys {
		a := by[k]
		rate := math.NaN()
		if a.labelled > 0 {
			rate = float64(a.pos) / float64(a.labelled)
		}
		out = append(out, GroupResult{Column: c.Name, Value: k, Size: a.n, ChurnRate: rate})
	}
	return out
}

// Markdown renders the report as a compact document.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET PROFILE]\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "File: %s\n", r.Name)
	}
	fmt.Fprintf(&b, "Rows: %d\n", r.Rows)
	fmt.Fprintf(&b, "Columns: %d\n", len(r.Cols))
	if !math.IsNaN(r.ChurnRate) {
		fmt.Fprintf(&b, "Churn rate: %.1f%%\n", r.ChurnRate*100)
	}

	b.WriteString("\n[SCHEMA]\n")
	for _, c := range r.Cols {
		missPct := 0.0
		if total := c.NonNull + c.Missing; total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		fmt.Fprintf(&b, "- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct)
		switch {
		case c.Kind == "numeric" && c.NonNull > 0:
			fmt.Fprintf(&b, ": min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std)
		case len(c.TopValues) > 0:
			b.WriteString(": top ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s(%d)", safeVal(kv.Value), kv.Count)
			}
			if c.Unique > len(c.TopValues) {
				fmt.Fprintf(&b, "; unique=%d", c.Unique)
			}
		}
		b.WriteString("\n")
	}

	if len(r.Groups) > 0 {
		b.WriteString("\n[CHURN RATE BY CATEGORY]\n")
		last := ""
		for _, g := range r.Groups {
			if g.Column != last {
				fmt.Fprintf(&b, "- %s\n", safeName(g.Column))
				last = g.Column
			}
			if math.IsNaN(g.ChurnRate) {
				fmt.Fprintf(&b, "  • %s (n=%d): no labels\n", safeVal(g.Value), g.Size)
				continue
			}
			fmt.Fprintf(&b, "  • %s (n=%d): %.1f%%\n", safeVal(g.Value), g.Size, g.ChurnRate*100)
		}
	}

	if len(r.Corr) > 0 {
		b.WriteString("\n[CORRELATION WITH LABEL]\n")
		for _, c := range r.Corr {
			fmt.Fprintf(&b, "- %s: r=%.3f (n=%d)\n", safeName(c.Column), c.R, c.N)
		}
	}

	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD ROWS]\n| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n|")
		for range r.Cols {
			b.WriteString(" --- |")
		}
		b.WriteString("\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i, val := range row {
				if i > 0 {
					b.WriteString(" | ")
				}
				b.WriteString(safeVal(truncate(val, 80)))
			}
			b.WriteString(" |\n")
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
