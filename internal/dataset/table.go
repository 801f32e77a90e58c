package dataset

import (
	"fmt"
	"strings"
	"time"
)

// Package dataset provides the column-oriented table model consumed by the
// quality engine. A Table is an ordered set of typed columns of equal length.
// Tables are treated as immutable by detectors: any transformation that needs
// to modify values (imputation, repair application) works on a Clone.

// ColumnKind identifies the value type of a column.
type ColumnKind string

const (
	KindNumeric   ColumnKind = "numeric"
	KindText      ColumnKind = "text"
	KindTimestamp ColumnKind = "timestamp"
)

// Column is a single named, typed column with a null mask. Exactly one of
// Floats, Strings, Times is populated, matching Kind. Null[i] marks row i as
// missing regardless of the placeholder stored in the value slice.
type Column struct {
	Name    string      `json:"name"`
	Kind    ColumnKind  `json:"kind"`
	Floats  []float64   `json:"floats,omitempty"`
	Strings []string    `json:"strings,omitempty"`
	Times   []time.Time `json:"times,omitempty"`
	Null    []bool      `json:"null,omitempty"`
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	switch c.Kind {
	case KindNumeric:
		return len(c.Floats)
	case KindText:
		return len(c.Strings)
	case KindTimestamp:
		return len(c.Times)
	}
	return 0
}

// IsNull reports whether row i is missing.
func (c *Column) IsNull(i int) bool {
	return i < len(c.Null) && c.Null[i]
}

// NullCount returns the number of missing rows.
func (c *Column) NullCount() int {
	n := 0
	for _, isNull := range c.Null {
		if isNull {
			n++
		}
	}
	return n
}

// NullRatio returns missing rows / total rows, or 0 for an empty column.
func (c *Column) NullRatio() float64 {
	rows := c.Len()
	if rows == 0 {
		return 0
	}
	return float64(c.NullCount()) / float64(rows)
}

// NonNullFloats returns the non-missing numeric values in row order.
func (c *Column) NonNullFloats() []float64 {
	if c.Kind != KindNumeric {
		return nil
	}
	out := make([]float64, 0, len(c.Floats))
	for i, v := range c.Floats {
		if !c.IsNull(i) {
			out = append(out, v)
		}
	}
	return out
}

// IsTimeLike reports whether the column holds timestamps, either by kind or
// by a conventional name ("time", "date", "timestamp" substring) on a numeric
// column carrying epoch values.
func (c *Column) IsTimeLike() bool {
	if c.Kind == KindTimestamp {
		return true
	}
	if c.Kind != KindNumeric {
		return false
	}
	name := strings.ToLower(c.Name)
	return strings.Contains(name, "time") ||
		strings.Contains(name, "date") ||
		strings.Contains(name, "timestamp")
}

// TimeValues returns the column as epoch seconds, skipping nulls. For
// time-like numeric columns the raw values are returned as-is.
func (c *Column) TimeValues() []float64 {
	switch c.Kind {
	case KindTimestamp:
		out := make([]float64, 0, len(c.Times))
		for i, t := range c.Times {
			if !c.IsNull(i) {
				out = append(out, float64(t.Unix()))
			}
		}
		return out
	case KindNumeric:
		return c.NonNullFloats()
	}
	return nil
}

// Table is an ordered collection of equal-length columns.
type Table struct {
	cols  []*Column
	index map[string]int
}

// New builds a Table from columns, validating equal lengths and unique names.
func New(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	rows := -1
	for _, c := range cols {
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		if rows == -1 {
			rows = c.Len()
		} else if c.Len() != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), rows)
		}
		t.index[c.Name] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	return t, nil
}

// MustNew is New for static test fixtures; panics on invalid shape.
func MustNew(cols ...*Column) *Table {
	t, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return t
}

// Rows returns the row count (0 for a table with no columns).
func (t *Table) Rows() int {
	if t == nil || len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

// Columns returns the ordered columns.
func (t *Table) Columns() []*Column { return t.cols }

// Column returns a column by name, or nil.
func (t *Table) Column(name string) *Column {
	if i, ok := t.index[name]; ok {
		return t.cols[i]
	}
	return nil
}

// NumericColumns returns non-time-like numeric columns in order.
func (t *Table) NumericColumns() []*Column {
	var out []*Column
	for _, c := range t.cols {
		if c.Kind == KindNumeric && !c.IsTimeLike() {
			out = append(out, c)
		}
	}
	return out
}

// TimeColumns returns time-like columns in order.
func (t *Table) TimeColumns() []*Column {
	var out []*Column
	for _, c := range t.cols {
		if c.IsTimeLike() {
			out = append(out, c)
		}
	}
	return out
}

// rowSignature renders row i as a comparable string. Nulls are encoded
// distinctly so two rows are duplicates only when they match cell for cell.
func (t *Table) rowSignature(i int) string {
	var b strings.Builder
	for _, c := range t.cols {
		if c.IsNull(i) {
			b.WriteString("\x00|")
			continue
		}
		switch c.Kind {
		case KindNumeric:
			fmt.Fprintf(&b, "%v|", c.Floats[i])
		case KindText:
			b.WriteString(c.Strings[i])
			b.WriteByte('|')
		case KindTimestamp:
			fmt.Fprintf(&b, "%d|", c.Times[i].UnixNano())
		}
	}
	return b.String()
}

// DuplicateRows returns the indices of rows that are exact duplicates of an
// earlier row (the first occurrence is not counted).
func (t *Table) DuplicateRows() []int {
	seen := make(map[string]struct{}, t.Rows())
	var dups []int
	for i := 0; i < t.Rows(); i++ {
		sig := t.rowSignature(i)
		if _, ok := seen[sig]; ok {
			dups = append(dups, i)
		} else {
			seen[sig] = struct{}{}
		}
	}
	return dups
}

// DuplicateRowRatio returns duplicate rows / total rows.
func (t *Table) DuplicateRowRatio() float64 {
	rows := t.Rows()
	if rows == 0 {
		return 0
	}
	return float64(len(t.DuplicateRows())) / float64(rows)
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{index: make(map[string]int, len(t.cols))}
	for _, c := range t.cols {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		nc.Floats = append([]float64(nil), c.Floats...)
		nc.Strings = append([]string(nil), c.Strings...)
		nc.Times = append([]time.Time(nil), c.Times...)
		nc.Null = append([]bool(nil), c.Null...)
		out.index[nc.Name] = len(out.cols)
		out.cols = append(out.cols, nc)
	}
	return out
}

// DropRows returns a copy of the table with the given row indices removed.
func (t *Table) DropRows(indices []int) *Table {
	drop := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		drop[i] = struct{}{}
	}
	out := &Table{index: make(map[string]int, len(t.cols))}
	for _, c := range t.cols {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		for i := 0; i < c.Len(); i++ {
			if _, skip := drop[i]; skip {
				continue
			}
			switch c.Kind {
			case KindNumeric:
				nc.Floats = append(nc.Floats, c.Floats[i])
			case KindText:
				nc.Strings = append(nc.Strings, c.Strings[i])
			case KindTimestamp:
				nc.Times = append(nc.Times, c.Times[i])
			}
			nc.Null = append(nc.Null, c.IsNull(i))
		}
		out.index[nc.Name] = len(out.cols)
		out.cols = append(out.cols, nc)
	}
	return out
}

// NumericColumn is a convenience constructor for a fully-present column.
func NumericColumn(name string, values []float64) *Column {
	return &Column{
		Name:   name,
		Kind:   KindNumeric,
		Floats: values,
		Null:   make([]bool, len(values)),
	}
}

// NumericColumnWithNulls builds a numeric column with an explicit null mask.
func NumericColumnWithNulls(name string, values []float64, null []bool) *Column {
	return &Column{Name: name, Kind: KindNumeric, Floats: values, Null: null}
}

// TimestampColumn builds a timestamp column with no nulls.
func TimestampColumn(name string, values []time.Time) *Column {
	return &Column{
		Name:  name,
		Kind:  KindTimestamp,
		Times: values,
		Null:  make([]bool, len(values)),
	}
}

// TextColumn builds a text column with no nulls.
func TextColumn(name string, values []string) *Column {
	return &Column{
		Name:    name,
		Kind:    KindText,
		Strings: values,
		Null:    make([]bool, len(values)),
	}
}
