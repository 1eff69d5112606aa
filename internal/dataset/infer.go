package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// naTokens are the cell values read as missing, matching the defaults of the
// dataframe tooling the downstream training stage uses.
var naTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsNA reports whether a raw cell is a missing-value token.
func IsNA(s string) bool {
	_, ok := naTokens[s]
	return ok
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	}
	return false, false
}

// FromRecords builds a typed table from a header and raw string rows. Short
// rows are padded with missing values; long rows are an error. The kind of
// each column is the narrowest of int64, float64, bool that every present
// value parses as, falling back to string.
func FromRecords(header []string, rows [][]string) (*Table, error) {
	names := dedupeHeader(header)
	ncol := len(names)
	for i, rec := range rows {
		if len(rec) > ncol {
			return nil, fmt.Errorf("row %d: expected %d fields, saw %d", i+1, ncol, len(rec))
		}
	}
	t := &Table{Columns: make([]*Column, ncol)}
	for j, name := range names {
		raw := make([]string, len(rows))
		for i, rec := range rows {
			if j < len(rec) {
				raw[i] = rec[j]
			}
		}
		t.Columns[j] = inferColumn(name, raw)
	}
	return t, nil
}

// dedupeHeader trims names and suffixes repeats with .1, .2, ...
func dedupeHeader(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if k, ok := used[name]; ok {
			base := name
			for {
				k++
				cand := fmt.Sprintf("%s.%d", base, k)
				if _, taken := used[cand]; !taken {
					used[base] = k
					name = cand
					break
				}
			}
		}
		used[name] = 0
		out[i] = name
	}
	return out
}

func inferColumn(name string, raw []string) *Column {
	n := len(raw)
	valid := make([]bool, n)
	present := 0
	allInt, allFloat, allBool := true, true, true
	for i, s := range raw {
		if IsNA(s) {
			continue
		}
		valid[i] = true
		present++
		v := strings.TrimSpace(s)
		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBool(v); !ok {
				allBool = false
			}
		}
	}
	c := &Column{Name: name, Valid: valid}
	switch {
	case present == 0:
		c.Kind = KindFloat
		c.Floats = make([]float64, n)
	case allInt:
		c.Kind = KindInt
		c.Ints = make([]int64, n)
		for i, s := range raw {
			if valid[i] {
				c.Ints[i], _ = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			}
		}
	case allFloat:
		c.Kind = KindFloat
		c.Floats = make([]float64, n)
		for i, s := range raw {
			if valid[i] {
				c.Floats[i], _ = strconv.ParseFloat(strings.TrimSpace(s), 64)
			}
		}
	case allBool:
		c.Kind = KindBool
		c.Bools = make([]bool, n)
		for i, s := range raw {
			if valid[i] {
				c.Bools[i], _ = parseBool(strings.TrimSpace(s))
			}
		}
	default:
		c.Kind = KindString
		c.Strings = make([]string, n)
		for i, s := range raw {
			if valid[i] {
				c.Strings[i] = s
			}
		}
	}
	return c
}
