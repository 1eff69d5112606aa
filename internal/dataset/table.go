package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the inferred storage type of a column.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int64"
	case KindFloat:
		return "float64"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Column is a named, typed column with a validity mask. Only the slice that
// matches Kind is populated; Valid[i] == false marks a missing value.
type Column struct {
	Name    string
	Kind    Kind
	Ints    []int64
	Floats  []float64
	Bools   []bool
	Strings []string
	Valid   []bool
}

// Len returns the number of rows in the column.
func (c *Column) Len() int { return len(c.Valid) }

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool { return !c.Valid[i] }

// NullCount returns the number of missing values.
func (c *Column) NullCount() int {
	n := 0
	for _, ok := range c.Valid {
		if !ok {
			n++
		}
	}
	return n
}

// Text returns a canonical textual form of row i. Missing values render as "".
func (c *Column) Text(i int) string {
	if !c.Valid[i] {
		return ""
	}
	switch c.Kind {
	case KindInt:
		return strconv.FormatInt(c.Ints[i], 10)
	case KindFloat:
		return strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(c.Bools[i])
	default:
		return c.Strings[i]
	}
}

// Float returns row i as a float64. Missing values and text that does not
// parse as a number yield NaN and ok=false.
func (c *Column) Float(i int) (float64, bool) {
	if !c.Valid[i] {
		return math.NaN(), false
	}
	switch c.Kind {
	case KindInt:
		return float64(c.Ints[i]), true
	case KindFloat:
		return c.Floats[i], true
	case KindBool:
		if c.Bools[i] {
			return 1, true
		}
		return 0, true
	default:
		f, err := strconv.ParseFloat(strings.TrimSpace(c.Strings[i]), 64)
		if err != nil {
			return math.NaN(), false
		}
		return f, true
	}
}

// take returns a copy of the column restricted to the given row indices.
func (c *Column) take(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind, Valid: make([]bool, len(rows))}
	switch c.Kind {
	case KindInt:
		out.Ints = make([]int64, len(rows))
	case KindFloat:
		out.Floats = make([]float64, len(rows))
	case KindBool:
		out.Bools = make([]bool, len(rows))
	default:
		out.Strings = make([]string, len(rows))
	}
	for j, r := range rows {
		out.Valid[j] = c.Valid[r]
		switch c.Kind {
		case KindInt:
			out.Ints[j] = c.Ints[r]
		case KindFloat:
			out.Floats[j] = c.Floats[r]
		case KindBool:
			out.Bools[j] = c.Bools[r]
		default:
			out.Strings[j] = c.Strings[r]
		}
	}
	return out
}

// NewIntColumn builds an integer column with every value present.
func NewIntColumn(name string, vals []int64) *Column {
	valid := make([]bool, len(vals))
	for i := range valid {
		valid[i] = true
	}
	return &Column{Name: name, Kind: KindInt, Ints: vals, Valid: valid}
}

// Table is an ordered set of equally long columns.
type Table struct {
	Columns []*Column
}

// NumRows returns the row count (0 for a table without columns).
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the named column or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	if i := t.Index(name); i >= 0 {
		return t.Columns[i], true
	}
	return nil, false
}

// Rename renames column from to to. It reports false when from does not exist.
func (t *Table) Rename(from, to string) bool {
	c, ok := t.Column(from)
	if !ok {
		return false
	}
	c.Name = to
	return true
}

// Replace swaps the column with the same name for c.
func (t *Table) Replace(c *Column) error {
	i := t.Index(c.Name)
	if i < 0 {
		return fmt.Errorf("column %q not found", c.Name)
	}
	if c.Len() != t.NumRows() {
		return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.NumRows())
	}
	t.Columns[i] = c
	return nil
}

// Without returns a table sharing columns with t minus the named ones.
func (t *Table) Without(names ...string) *Table {
	skip := make(map[string]struct{}, len(names))
	for _, n := range names {
		skip[n] = struct{}{}
	}
	out := &Table{}
	for _, c := range t.Columns {
		if _, ok := skip[c.Name]; ok {
			continue
		}
		out.Columns = append(out.Columns, c)
	}
	return out
}

// rowKey builds an equality key over every column of row i. Present cells are
// length-prefixed and missing cells get their own marker. Signed zeros compare
// equal.
func (t *Table) rowKey(i int, b []byte) []byte {
	b = b[:0]
	for _, c := range t.Columns {
		if c.IsNull(i) {
			b = append(b, 'N')
			continue
		}
		s := c.Text(i)
		if c.Kind == KindFloat && c.Floats[i] == 0 {
			s = "0"
		}
		b = append(b, 'V')
		b = strconv.AppendInt(b, int64(len(s)), 10)
		b = append(b, ':')
		b = append(b, s...)
	}
	return b
}

// DropDuplicateRows removes rows equal in every column to an earlier row and
// returns the deduplicated table with the number of rows removed.
func (t *Table) DropDuplicateRows() (*Table, int) {
	n := t.NumRows()
	seen := make(map[string]struct{}, n)
	keep := make([]int, 0, n)
	var buf []byte
	for i := 0; i < n; i++ {
		buf = t.rowKey(i, buf)
		if _, ok := seen[string(buf)]; ok {
			continue
		}
		seen[string(buf)] = struct{}{}
		keep = append(keep, i)
	}
	if len(keep) == n {
		return t, 0
	}
	out := &Table{Columns: make([]*Column, len(t.Columns))}
	for j, c := range t.Columns {
		out.Columns[j] = c.take(keep)
	}
	return out, n - len(keep)
}

// DropEmptyColumns removes columns whose every value is missing. A table
// without rows keeps its columns.
func (t *Table) DropEmptyColumns() (*Table, []string) {
	if t.NumRows() == 0 {
		return t, nil
	}
	out := &Table{}
	var dropped []string
	for _, c := range t.Columns {
		if c.NullCount() == c.Len() {
			dropped = append(dropped, c.Name)
			continue
		}
		out.Columns = append(out.Columns, c)
	}
	return out, dropped
}
