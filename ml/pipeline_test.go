package ml

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxifare/data"
)

type failingEstimator struct{}

func (failingEstimator) Fit(context.Context, *data.Table) (Transformer, error) {
	return nil, errors.New("boom")
}

func TestEstimatorChainAppendIsImmutable(t *testing.T) {
	base := NewEstimatorChain().Append(CopyColumns("Label", "FareAmount"))
	extended := base.Append(Concatenate("Features", "Label"))

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, extended.Len())
}

func TestEstimatorChainFitErrors(t *testing.T) {
	table := syntheticTrips(t, 20, 31)

	_, err := NewEstimatorChain().Fit(context.Background(), table)
	assert.Error(t, err)

	_, err = testChain(smallTreeOptions()).Fit(context.Background(), data.NewTable(0))
	assert.Error(t, err)

	_, err = NewEstimatorChain().
		Append(CopyColumns("Label", "FareAmount")).
		Append(failingEstimator{}).
		Fit(context.Background(), table)
	assert.EqualError(t, err, "fit step 1: boom")
}

func TestTransformerChainKeepsStepOrder(t *testing.T) {
	table := syntheticTrips(t, 120, 32)
	model, err := testChain(smallTreeOptions()).Fit(context.Background(), table)
	require.NoError(t, err)

	kinds := make([]string, 0)
	for _, tr := range model.Transformers() {
		kinds = append(kinds, tr.Kind())
	}
	assert.Equal(t, []string{
		KindCopyColumns,
		KindOneHotEncoding,
		KindOneHotEncoding,
		KindOneHotEncoding,
		KindConcatenate,
		KindBoostedTreeRegression,
	}, kinds)

	scored, err := model.Transform(table)
	require.NoError(t, err)
	for _, name := range []string{"Label", "VendorIdEncoded", "Features", "Score"} {
		_, err := scored.Column(name)
		assert.NoError(t, err, name)
	}
	assert.Empty(t, model.Metadata())
}

func TestTransformerChainMetadataIsCopied(t *testing.T) {
	chain := NewTransformerChain(CopyColumns("Label", "FareAmount")).
		WithMetadata(map[string]string{"a": "1"})
	md := chain.Metadata()
	md["a"] = "changed"
	assert.Equal(t, "1", chain.Metadata()["a"])

	merged := chain.WithMetadata(map[string]string{"b": "2"})
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, merged.Metadata())
	assert.Equal(t, map[string]string{"a": "1"}, chain.Metadata())
}
