package dataset

import (
	"errors"
	"fmt"
)

// Kind identifies the storage type of a column.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

var (
	ErrMissingColumn = errors.New("missing column")
	ErrKindMismatch  = errors.New("column kind mismatch")
)

// Column is a single typed column. Exactly one of the value slices is
// populated, matching Kind. Float columns use NaN for missing values,
// string columns use "".
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Ints    []int64
	Strings []string
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	switch c.Kind {
	case KindFloat:
		return len(c.Floats)
	case KindInt:
		return len(c.Ints)
	default:
		return len(c.Strings)
	}
}

// Table is a named collection of equal-length typed columns. A table
// is owned by exactly one pipeline stage at a time; stages that
// consume a table call Release on it once their output exists.
type Table struct {
	name  string
	cols  []Column
	index map[string]int
	rows  int
}

// NewTable creates an empty table. The name appears in error messages
// and logs, conventionally the source file base name or stage name.
func NewTable(name string) *Table {
	return &Table{name: name, index: make(map[string]int)}
}

func (t *Table) Name() string { return t.name }

// NumRows returns the row count.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.cols) }

// ColumnNames returns column names in insertion order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i := range t.cols {
		names[i] = t.cols[i].Name
	}
	return names
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column, or an error naming the table.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("table %s: %w: %s", t.name, ErrMissingColumn, name)
	}
	return &t.cols[i], nil
}

func (t *Table) addColumn(c Column) error {
	if _, ok := t.index[c.Name]; ok {
		return fmt.Errorf("table %s: duplicate column %s", t.name, c.Name)
	}
	n := c.Len()
	if len(t.cols) > 0 && n != t.rows {
		return fmt.Errorf("table %s: column %s has %d rows, want %d", t.name, c.Name, n, t.rows)
	}
	t.rows = n
	t.index[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// AddFloats appends a float64 column. The slice is owned by the table
// after the call.
func (t *Table) AddFloats(name string, vals []float64) error {
	return t.addColumn(Column{Name: name, Kind: KindFloat, Floats: vals})
}

// AddInts appends an int64 column.
func (t *Table) AddInts(name string, vals []int64) error {
	return t.addColumn(Column{Name: name, Kind: KindInt, Ints: vals})
}

// AddStrings appends a string column.
func (t *Table) AddStrings(name string, vals []string) error {
	return t.addColumn(Column{Name: name, Kind: KindString, Strings: vals})
}

// Floats returns the backing slice of a float column.
func (t *Table) Floats(name string) ([]float64, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != KindFloat {
		return nil, fmt.Errorf("table %s: column %s: %w: have %s, want float", t.name, name, ErrKindMismatch, c.Kind)
	}
	return c.Floats, nil
}

// Ints returns the backing slice of an int column.
func (t *Table) Ints(name string) ([]int64, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != KindInt {
		return nil, fmt.Errorf("table %s: column %s: %w: have %s, want int", t.name, name, ErrKindMismatch, c.Kind)
	}
	return c.Ints, nil
}

// Strings returns the backing slice of a string column.
func (t *Table) Strings(name string) ([]string, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != KindString {
		return nil, fmt.Errorf("table %s: column %s: %w: have %s, want string", t.name, name, ErrKindMismatch, c.Kind)
	}
	return c.Strings, nil
}

// ReplaceFloats swaps the named column's contents for a float slice,
// keeping its position. Used when a transform changes a column's kind.
func (t *Table) ReplaceFloats(name string, vals []float64) error {
	i, ok := t.index[name]
	if !ok {
		return fmt.Errorf("table %s: %w: %s", t.name, ErrMissingColumn, name)
	}
	if len(vals) != t.rows {
		return fmt.Errorf("table %s: column %s: %d rows, want %d", t.name, name, len(vals), t.rows)
	}
	t.cols[i] = Column{Name: name, Kind: KindFloat, Floats: vals}
	return nil
}

// Drop removes the named columns. A name that does not exist is an
// error so that stale configuration fails loudly.
func (t *Table) Drop(names ...string) error {
	for _, name := range names {
		i, ok := t.index[name]
		if !ok {
			return fmt.Errorf("table %s: drop: %w: %s", t.name, ErrMissingColumn, name)
		}
		t.cols = append(t.cols[:i], t.cols[i+1:]...)
		delete(t.index, name)
		for n, j := range t.index {
			if j > i {
				t.index[n] = j - 1
			}
		}
	}
	if len(t.cols) == 0 {
		t.rows = 0
	}
	return nil
}

// Release drops all column data so the backing arrays can be
// reclaimed. The table is unusable afterwards.
func (t *Table) Release() {
	t.cols = nil
	t.index = nil
	t.rows = 0
}
