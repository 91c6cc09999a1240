package fare

import (
	"go.uber.org/zap"

	"taxifare/ml"
)

// Encoded feature column names.
const (
	ColVendorIDEncoded    = "VendorIdEncoded"
	ColRateCodeEncoded    = "RateCodeEncoded"
	ColPaymentTypeEncoded = "PaymentTypeEncoded"
)

// BuildPipeline composes the fixed fare pipeline without fitting it: label
// alias, one-hot encoding of the three categorical columns, feature
// concatenation and a boosted tree regressor with default options.
func BuildPipeline(seed int64, logger *zap.Logger) *ml.EstimatorChain {
	return buildPipeline(trainerOptions(seed), logger)
}

func trainerOptions(seed int64) ml.BoostedTreeOptions {
	opts := ml.DefaultBoostedTreeOptions()
	opts.Seed = seed
	return opts
}

func buildPipeline(opts ml.BoostedTreeOptions, logger *zap.Logger) *ml.EstimatorChain {
	trainer := ml.NewBoostedTreeRegressor(ColLabel, ColFeatures, opts)
	trainer.ScoreColumn = ColScore
	if logger != nil {
		trainer.Logger = logger
	}

	return ml.NewEstimatorChain().
		Append(ml.CopyColumns(ColLabel, ColFareAmount)).
		Append(ml.OneHotEncoding(ColVendorIDEncoded, ColVendorID)).
		Append(ml.OneHotEncoding(ColRateCodeEncoded, ColRateCode)).
		Append(ml.OneHotEncoding(ColPaymentTypeEncoded, ColPaymentType)).
		Append(ml.Concatenate(ColFeatures,
			ColVendorIDEncoded, ColRateCodeEncoded, ColPassengerCount,
			ColTripTime, ColTripDistance, ColPaymentTypeEncoded)).
		Append(trainer)
}
