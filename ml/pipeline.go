package ml

import (
	"context"
	"errors"
	"fmt"

	"taxifare/data"
)

// EstimatorChain is an ordered list of estimators. Fitting runs each
// estimator on the output of the previously fitted transformers.
type EstimatorChain struct {
	estimators []Estimator
}

func NewEstimatorChain() *EstimatorChain {
	return &EstimatorChain{}
}

// Append returns a new chain; the receiver is left untouched.
func (c *EstimatorChain) Append(e Estimator) *EstimatorChain {
	next := make([]Estimator, 0, len(c.estimators)+1)
	next = append(next, c.estimators...)
	next = append(next, e)
	return &EstimatorChain{estimators: next}
}

func (c *EstimatorChain) Len() int { return len(c.estimators) }

func (c *EstimatorChain) Fit(ctx context.Context, t *data.Table) (*TransformerChain, error) {
	if len(c.estimators) == 0 {
		return nil, errors.New("empty estimator chain")
	}
	if t == nil || t.Rows() == 0 {
		return nil, errors.New("training table is empty")
	}
	fitted := make([]Transformer, 0, len(c.estimators))
	current := t
	for i, est := range c.estimators {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tr, err := est.Fit(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("fit step %d: %w", i, err)
		}
		fitted = append(fitted, tr)
		// the last transform is only needed when another estimator follows
		if i == len(c.estimators)-1 {
			break
		}
		current, err = tr.Transform(current)
		if err != nil {
			return nil, fmt.Errorf("transform step %d (%s): %w", i, tr.Kind(), err)
		}
	}
	return &TransformerChain{transformers: fitted}, nil
}

// TransformerChain is the Model produced by fitting an EstimatorChain.
type TransformerChain struct {
	transformers []Transformer
	metadata     map[string]string
}

func NewTransformerChain(transformers ...Transformer) *TransformerChain {
	return &TransformerChain{transformers: append([]Transformer(nil), transformers...)}
}

func (c *TransformerChain) Transform(t *data.Table) (*data.Table, error) {
	current := t
	for i, tr := range c.transformers {
		next, err := tr.Transform(current)
		if err != nil {
			return nil, fmt.Errorf("transform step %d (%s): %w", i, tr.Kind(), err)
		}
		current = next
	}
	return current, nil
}

func (c *TransformerChain) Transformers() []Transformer {
	return append([]Transformer(nil), c.transformers...)
}

// Metadata returns a copy of the chain's metadata.
func (c *TransformerChain) Metadata() map[string]string {
	out := make(map[string]string, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// WithMetadata returns a copy of the chain carrying the merged metadata.
func (c *TransformerChain) WithMetadata(md map[string]string) *TransformerChain {
	merged := c.Metadata()
	for k, v := range md {
		merged[k] = v
	}
	return &TransformerChain{transformers: c.transformers, metadata: merged}
}
