package ml

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"taxifare/data"
)

const KindOneHotEncoding = "OneHotEncoding"

// OneHotEncodingEstimator learns the category vocabulary of a text column.
type OneHotEncodingEstimator struct {
	Output string
	Input  string
}

func OneHotEncoding(output, input string) *OneHotEncodingEstimator {
	return &OneHotEncodingEstimator{Output: output, Input: input}
}

func (e *OneHotEncodingEstimator) Fit(ctx context.Context, t *data.Table) (Transformer, error) {
	col, err := t.TypedColumn(e.Input, data.Text)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	vocab := make([]string, 0)
	for _, v := range col.Texts {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		vocab = append(vocab, v)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("one-hot %s: no categories", e.Input)
	}
	return &OneHotEncoder{Output: e.Output, Input: e.Input, Vocabulary: vocab}, nil
}

// OneHotEncoder maps each category to an indicator vector over a vocabulary
// fixed at fit time, in first-seen order. Unknown categories encode as the
// all-zero vector.
type OneHotEncoder struct {
	Output     string   `json:"output"`
	Input      string   `json:"input"`
	Vocabulary []string `json:"vocabulary"`
}

func (e *OneHotEncoder) Kind() string { return KindOneHotEncoding }

func (e *OneHotEncoder) Transform(t *data.Table) (*data.Table, error) {
	if len(e.Vocabulary) == 0 {
		return nil, errors.New("one-hot encoder has empty vocabulary")
	}
	col, err := t.TypedColumn(e.Input, data.Text)
	if err != nil {
		return nil, err
	}
	if t.Rows() == 0 {
		return nil, errors.New("one-hot: empty table")
	}
	index := make(map[string]int, len(e.Vocabulary))
	for i, v := range e.Vocabulary {
		index[v] = i
	}
	out := mat.NewDense(t.Rows(), len(e.Vocabulary), nil)
	for i, v := range col.Texts {
		if slot, ok := index[v]; ok {
			out.Set(i, slot, 1)
		}
	}
	return t.With(data.NewVectorColumn(e.Output, out))
}
