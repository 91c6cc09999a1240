package ml

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"taxifare/data"
)

const (
	KindCopyColumns = "CopyColumns"
	KindConcatenate = "Concatenate"
)

type ColumnPair struct {
	Output string `json:"output"`
	Input  string `json:"input"`
}

// ColumnCopier exposes existing columns under new names. It needs no
// fitting, so it is both the estimator and the fitted transformer.
type ColumnCopier struct {
	Pairs []ColumnPair `json:"pairs"`
}

func CopyColumns(output, input string) *ColumnCopier {
	return &ColumnCopier{Pairs: []ColumnPair{{Output: output, Input: input}}}
}

func (c *ColumnCopier) Kind() string { return KindCopyColumns }

func (c *ColumnCopier) Fit(_ context.Context, t *data.Table) (Transformer, error) {
	if _, err := c.Transform(t); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ColumnCopier) Transform(t *data.Table) (*data.Table, error) {
	out := t
	for _, p := range c.Pairs {
		src, err := t.Column(p.Input)
		if err != nil {
			return nil, err
		}
		alias := *src
		alias.Name = p.Output
		if out, err = out.With(&alias); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ColumnConcatenator joins Float32 and Vector columns, in order, into one
// Vector column.
type ColumnConcatenator struct {
	Output string   `json:"output"`
	Inputs []string `json:"inputs"`
}

func Concatenate(output string, inputs ...string) *ColumnConcatenator {
	return &ColumnConcatenator{Output: output, Inputs: inputs}
}

func (c *ColumnConcatenator) Kind() string { return KindConcatenate }

func (c *ColumnConcatenator) Fit(_ context.Context, t *data.Table) (Transformer, error) {
	if len(c.Inputs) == 0 {
		return nil, errors.New("concatenate: no input columns")
	}
	if _, err := c.Transform(t); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ColumnConcatenator) Transform(t *data.Table) (*data.Table, error) {
	if t.Rows() == 0 {
		return nil, errors.New("concatenate: empty table")
	}
	cols := make([]*data.Column, 0, len(c.Inputs))
	width := 0
	for _, name := range c.Inputs {
		col, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		if col.Type != data.Float32 && col.Type != data.Vector {
			return nil, fmt.Errorf("concatenate: column %q is %s, want numeric", name, col.Type)
		}
		cols = append(cols, col)
		width += col.Width()
	}
	if width == 0 {
		return nil, errors.New("concatenate: zero-width output")
	}

	rows := t.Rows()
	out := mat.NewDense(rows, width, nil)
	offset := 0
	for _, col := range cols {
		switch col.Type {
		case data.Float32:
			for i, v := range col.Floats {
				out.Set(i, offset, float64(v))
			}
		case data.Vector:
			if w := col.Width(); w > 0 {
				out.Slice(0, rows, offset, offset+w).(*mat.Dense).Copy(col.Vectors)
			}
		}
		offset += col.Width()
	}
	return t.With(data.NewVectorColumn(c.Output, out))
}
