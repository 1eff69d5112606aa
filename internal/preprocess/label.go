package preprocess

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/churnflow-cli/internal/dataset"
)

// ErrTargetColumnMissing is returned when the raw table lacks the target column.
var ErrTargetColumnMissing = errors.New("target column not found in dataset")

// maxLabelSamples bounds how many offending rows a LabelError lists.
const maxLabelSamples = 5

// LabelSample is one row whose label could not be mapped to 0 or 1.
type LabelSample struct {
	Row int // 1-based data row, header excluded
	Raw string
}

// LabelError reports label values outside {0,1} after normalization.
type LabelError struct {
	Column  string
	Count   int
	Samples []LabelSample
}

func (e *LabelError) Error() string {
	parts := make([]string, len(e.Samples))
	for i, s := range e.Samples {
		parts[i] = fmt.Sprintf("row %d (%s)", s.Row, s.Raw)
	}
	more := ""
	if e.Count > len(e.Samples) {
		more = fmt.Sprintf(", and %d more", e.Count-len(e.Samples))
	}
	return fmt.Sprintf("column %q: %d row(s) cannot be mapped to 0/1: %s%s",
		e.Column, e.Count, strings.Join(parts, ", "), more)
}

var labelWords = map[string]int64{"yes": 1, "true": 1, "no": 0, "false": 0}

// mapLabel converts row i of c to 0 or 1.
func mapLabel(c *dataset.Column, i int) (int64, bool) {
	if c.IsNull(i) {
		return 0, false
	}
	var v int64
	switch c.Kind {
	case dataset.KindString:
		w, ok := labelWords[strings.ToLower(strings.TrimSpace(c.Strings[i]))]
		if !ok {
			return 0, false
		}
		v = w
	case dataset.KindBool:
		if c.Bools[i] {
			v = 1
		}
	case dataset.KindInt:
		v = c.Ints[i]
	case dataset.KindFloat:
		f := c.Floats[i]
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, false
		}
		v = int64(f)
	default:
		return 0, false
	}
	return v, v == 0 || v == 1
}

// NormalizeLabel maps a raw churn column to an integer column of 0/1 values
// under the given name. Text labels are trimmed and matched case-insensitively
// against yes/no/true/false.
func NormalizeLabel(c *dataset.Column, name string) (*dataset.Column, error) {
	n := c.Len()
	vals := make([]int64, n)
	lerr := &LabelError{Column: name}
	for i := 0; i < n; i++ {
		v, ok := mapLabel(c, i)
		if !ok {
			lerr.Count++
			if len(lerr.Samples) < maxLabelSamples {
				raw := c.Text(i)
				if c.IsNull(i) {
					raw = "missing"
				} else {
					raw = fmt.Sprintf("%q", raw)
				}
				lerr.Samples = append(lerr.Samples, LabelSample{Row: i + 1, Raw: raw})
			}
			continue
		}
		vals[i] = v
	}
	if lerr.Count > 0 {
		return nil, lerr
	}
	return dataset.NewIntColumn(name, vals), nil
}
