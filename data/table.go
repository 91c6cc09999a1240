// Package data holds the columnar in-memory table the pipeline operates on
// and the schema-driven CSV loader that fills it.
package data

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

type ColumnType int

const (
	Text ColumnType = iota
	Float32
	Vector
)

func (t ColumnType) String() string {
	switch t {
	case Text:
		return "text"
	case Float32:
		return "float32"
	case Vector:
		return "vector"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// ColumnSpec declares one column: its name, type and the zero-based index of
// the source field it is parsed from.
type ColumnSpec struct {
	Name  string
	Type  ColumnType
	Index int
}

type Schema []ColumnSpec

// Column is a typed column. Exactly one of Texts, Floats or Vectors is set,
// according to Type. Vectors holds one row per record.
type Column struct {
	Name    string
	Type    ColumnType
	Texts   []string
	Floats  []float32
	Vectors *mat.Dense
}

func NewTextColumn(name string, values []string) *Column {
	return &Column{Name: name, Type: Text, Texts: values}
}

func NewFloat32Column(name string, values []float32) *Column {
	return &Column{Name: name, Type: Float32, Floats: values}
}

func NewVectorColumn(name string, values *mat.Dense) *Column {
	return &Column{Name: name, Type: Vector, Vectors: values}
}

func (c *Column) Len() int {
	switch c.Type {
	case Text:
		return len(c.Texts)
	case Float32:
		return len(c.Floats)
	case Vector:
		if c.Vectors == nil {
			return 0
		}
		rows, _ := c.Vectors.Dims()
		return rows
	default:
		return 0
	}
}

// Width is the number of numeric slots a column contributes to a feature vector.
func (c *Column) Width() int {
	switch c.Type {
	case Float32:
		return 1
	case Vector:
		if c.Vectors == nil {
			return 0
		}
		_, cols := c.Vectors.Dims()
		return cols
	default:
		return 0
	}
}

var ErrColumnNotFound = errors.New("column not found")

// Table is an ordered set of equal-length columns. Tables are treated as
// immutable once built: transforms derive new tables with With.
type Table struct {
	rows    int
	columns []*Column
	index   map[string]int
}

func NewTable(rows int) *Table {
	return &Table{rows: rows, index: make(map[string]int)}
}

func (t *Table) Rows() int { return t.rows }

// Add appends a column, replacing an existing column of the same name.
func (t *Table) Add(c *Column) error {
	if c == nil {
		return errors.New("nil column")
	}
	if c.Len() != t.rows {
		return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.rows)
	}
	if i, ok := t.index[c.Name]; ok {
		t.columns[i] = c
		return nil
	}
	t.index[c.Name] = len(t.columns)
	t.columns = append(t.columns, c)
	return nil
}

// With returns a shallow copy of t with c added. The receiver is unchanged.
func (t *Table) With(c *Column) (*Table, error) {
	out := &Table{
		rows:    t.rows,
		columns: append([]*Column(nil), t.columns...),
		index:   make(map[string]int, len(t.index)+1),
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	if err := out.Add(c); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return t.columns[i], nil
}

// TypedColumn looks up a column and checks its type.
func (t *Table) TypedColumn(name string, typ ColumnType) (*Column, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Type != typ {
		return nil, fmt.Errorf("column %q is %s, want %s", name, c.Type, typ)
	}
	return c, nil
}

func (t *Table) Names() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}
