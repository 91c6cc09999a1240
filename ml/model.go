package ml

import (
	"context"
	"io"

	"taxifare/data"
)

// Transformer is a fitted, immutable step of a model. Transform never
// modifies its input table.
type Transformer interface {
	Transform(t *data.Table) (*data.Table, error)
	Kind() string
}

// Estimator learns a Transformer from a table.
type Estimator interface {
	Fit(ctx context.Context, t *data.Table) (Transformer, error)
}

// Model is a fitted transform graph. It is produced by EstimatorChain.Fit or
// by Load and is never mutated afterwards.
type Model interface {
	Transform(t *data.Table) (*data.Table, error)
	Save(w io.Writer) error
	Metadata() map[string]string
}
