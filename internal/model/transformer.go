package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/KaramelBytes/churnflow-cli/internal/dataset"
)

// Column transformer part kinds.
const (
	PartStandardScaler = "standard_scaler"
	PartOneHot         = "one_hot"
	PartPassthrough    = "passthrough"
	PartFunction       = "function"
)

// ErrNoFeatureNames means a transformer cannot name its output columns.
var ErrNoFeatureNames = errors.New("transformer does not provide output feature names")

// TransformerPart maps a group of input columns to output features.
type TransformerPart struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Columns []string `json:"columns"`

	// standard_scaler: (x - Mean) / Scale, missing values replaced by Fill
	// before scaling when Fill is set.
	Mean  []float64 `json:"mean,omitempty"`
	Scale []float64 `json:"scale,omitempty"`
	Fill  []float64 `json:"fill,omitempty"`

	// one_hot: Categories[j] lists the known values of Columns[j].
	// HandleUnknown is "ignore" (all zeros) or "error".
	Categories    [][]string `json:"categories,omitempty"`
	HandleUnknown string     `json:"handle_unknown,omitempty"`

	// function: element-wise transform; only "log1p" is known.
	Func string `json:"func,omitempty"`
}

// ColumnTransformer applies parts to column subsets and concatenates their
// outputs left to right. Columns not claimed by any part are dropped or,
// with Remainder "passthrough", appended as-is.
type ColumnTransformer struct {
	Parts        []TransformerPart `json:"transformers"`
	Remainder    string            `json:"remainder,omitempty"`
	InputColumns []string          `json:"feature_names_in,omitempty"`
	// VerboseNames prefixes output names with the part name; default true.
	VerboseNames *bool `json:"verbose_feature_names_out,omitempty"`
}

func (ct *ColumnTransformer) validate() error {
	if len(ct.Parts) == 0 {
		return fmt.Errorf("no transformers")
	}
	switch ct.Remainder {
	case "", "drop", "passthrough":
	default:
		return fmt.Errorf("remainder must be drop or passthrough, got %q", ct.Remainder)
	}
	seen := map[string]bool{}
	for _, p := range ct.Parts {
		if p.Name == "" || p.Name == "remainder" || seen[p.Name] {
			return fmt.Errorf("invalid or duplicate transformer name %q", p.Name)
		}
		seen[p.Name] = true
		if len(p.Columns) == 0 {
			return fmt.Errorf("transformer %q: no columns", p.Name)
		}
		n := len(p.Columns)
		switch p.Kind {
		case PartStandardScaler:
			if len(p.Mean) != n || len(p.Scale) != n {
				return fmt.Errorf("transformer %q: mean/scale must have %d entries", p.Name, n)
			}
			if p.Fill != nil && len(p.Fill) != n {
				return fmt.Errorf("transformer %q: fill must have %d entries", p.Name, n)
			}
		case PartOneHot:
			if len(p.Categories) != n {
				return fmt.Errorf("transformer %q: categories must have %d entries", p.Name, n)
			}
			switch p.HandleUnknown {
			case "", "ignore", "error":
			default:
				return fmt.Errorf("transformer %q: handle_unknown must be ignore or error", p.Name)
			}
		case PartPassthrough:
		case PartFunction:
			if p.Func != "log1p" {
				return fmt.Errorf("transformer %q: unknown function %q", p.Name, p.Func)
			}
		default:
			return fmt.Errorf("transformer %q: unknown kind %q", p.Name, p.Kind)
		}
	}
	return nil
}

func (p *TransformerPart) width() int {
	if p.Kind != PartOneHot {
		return len(p.Columns)
	}
	w := 0
	for _, cats := range p.Categories {
		w += len(cats)
	}
	return w
}

// remainderColumns lists input columns no part claims, in input order.
func (ct *ColumnTransformer) remainderColumns(input []string) []string {
	if ct.Remainder != "passthrough" {
		return nil
	}
	claimed := map[string]bool{}
	for _, p := range ct.Parts {
		for _, c := range p.Columns {
			claimed[c] = true
		}
	}
	var out []string
	for _, c := range input {
		if !claimed[c] {
			out = append(out, c)
		}
	}
	return out
}

// Transform returns the feature matrix, one row per table row.
func (ct *ColumnTransformer) Transform(t *dataset.Table) ([][]float64, error) {
	input := ct.InputColumns
	if len(input) == 0 {
		input = t.Names()
	}
	rest := ct.remainderColumns(input)
	width := len(rest)
	for i := range ct.Parts {
		width += ct.Parts[i].width()
	}
	n := t.NumRows()
	X := make([][]float64, n)
	for i := range X {
		X[i] = make([]float64, 0, width)
	}

	lookup := func(name string) (*dataset.Column, error) {
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("column %q not found in input", name)
		}
		return c, nil
	}
	for pi := range ct.Parts {
		p := &ct.Parts[pi]
		for j, name := range p.Columns {
			c, err := lookup(name)
			if err != nil {
				return nil, fmt.Errorf("transformer %q: %w", p.Name, err)
			}
			switch p.Kind {
			case PartStandardScaler:
				scale := p.Scale[j]
				if scale == 0 {
					scale = 1
				}
				for i := 0; i < n; i++ {
					v, ok := c.Float(i)
					if !ok && p.Fill != nil {
						v = p.Fill[j]
					}
					X[i] = append(X[i], (v-p.Mean[j])/scale)
				}
			case PartOneHot:
				cats := p.Categories[j]
				for i := 0; i < n; i++ {
					k := -1
					if !c.IsNull(i) {
						k = slices.Index(cats, c.Text(i))
					}
					if k < 0 && p.HandleUnknown == "error" {
						return nil, fmt.Errorf("transformer %q: unknown category %q in column %q (row %d)",
							p.Name, c.Text(i), name, i+1)
					}
					for q := range cats {
						if q == k {
							X[i] = append(X[i], 1)
						} else {
							X[i] = append(X[i], 0)
						}
					}
				}
			case PartPassthrough:
				for i := 0; i < n; i++ {
					v, _ := c.Float(i)
					X[i] = append(X[i], v)
				}
			case PartFunction:
				for i := 0; i < n; i++ {
					v, _ := c.Float(i)
					X[i] = append(X[i], math.Log1p(v))
				}
			}
		}
	}
	for _, name := range rest {
		c, err := lookup(name)
		if err != nil {
			return nil, fmt.Errorf("remainder: %w", err)
		}
		for i := 0; i < n; i++ {
			v, _ := c.Float(i)
			X[i] = append(X[i], v)
		}
	}
	return X, nil
}

// FeatureNames returns the output column names. Function parts have no
// names, and a passthrough remainder needs the recorded input columns.
func (ct *ColumnTransformer) FeatureNames() ([]string, error) {
	verbose := ct.VerboseNames == nil || *ct.VerboseNames
	name := func(part, col string) string {
		if verbose {
			return part + "__" + col
		}
		return col
	}
	var out []string
	for _, p := range ct.Parts {
		switch p.Kind {
		case PartFunction:
			return nil, fmt.Errorf("transformer %q: %w", p.Name, ErrNoFeatureNames)
		case PartOneHot:
			for j, col := range p.Columns {
				for _, cat := range p.Categories[j] {
					out = append(out, name(p.Name, col+"_"+cat))
				}
			}
		default:
			for _, col := range p.Columns {
				out = append(out, name(p.Name, col))
			}
		}
	}
	if ct.Remainder == "passthrough" {
		if len(ct.InputColumns) == 0 {
			return nil, fmt.Errorf("remainder: %w without feature_names_in", ErrNoFeatureNames)
		}
		for _, col := range ct.remainderColumns(ct.InputColumns) {
			out = append(out, name("remainder", col))
		}
	}
	if !verbose {
		seen := map[string]bool{}
		for _, n := range out {
			if seen[n] {
				return nil, fmt.Errorf("output name %q is not unique", n)
			}
			seen[n] = true
		}
	}
	return out, nil
}

func decodeColumnTransformer(params json.RawMessage) (any, error) {
	var ct ColumnTransformer
	if err := strictUnmarshal(params, &ct); err != nil {
		return nil, err
	}
	if err := ct.validate(); err != nil {
		return nil, err
	}
	return &ct, nil
}
