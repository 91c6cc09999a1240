package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"taxifare/data"
)

type RegressionMetrics struct {
	MeanAbsoluteError    float64 `json:"mean_absolute_error"`
	MeanSquaredError     float64 `json:"mean_squared_error"`
	RootMeanSquaredError float64 `json:"root_mean_squared_error"`
	// LossFunction is the mean squared-error loss of the trainer.
	LossFunction float64 `json:"loss_function"`
	RSquared     float64 `json:"r_squared"`
	Count        int     `json:"count"`
}

// EvaluateRegression compares a scored table's score column against its
// label column.
func EvaluateRegression(scored *data.Table, labelColumn, scoreColumn string) (RegressionMetrics, error) {
	label, err := scored.TypedColumn(labelColumn, data.Float32)
	if err != nil {
		return RegressionMetrics{}, err
	}
	score, err := scored.TypedColumn(scoreColumn, data.Float32)
	if err != nil {
		return RegressionMetrics{}, err
	}
	return RegressionMetricsFrom(toFloat64(label.Floats), toFloat64(score.Floats))
}

func RegressionMetricsFrom(labels, scores []float64) (RegressionMetrics, error) {
	if len(labels) == 0 {
		return RegressionMetrics{}, errors.New("no rows to evaluate")
	}
	if len(labels) != len(scores) {
		return RegressionMetrics{}, fmt.Errorf("labels/scores length mismatch: %d vs %d", len(labels), len(scores))
	}

	var absSum, sqSum float64
	for i := range labels {
		d := scores[i] - labels[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}
	n := float64(len(labels))
	mse := sqSum / n

	return RegressionMetrics{
		MeanAbsoluteError:    absSum / n,
		MeanSquaredError:     mse,
		RootMeanSquaredError: math.Sqrt(mse),
		LossFunction:         mse,
		RSquared:             rSquared(labels, scores, sqSum),
		Count:                len(labels),
	}, nil
}

// rSquared falls back to 1 for a perfect fit and 0 otherwise when the labels
// have no variance.
func rSquared(labels, scores []float64, ssRes float64) float64 {
	constant := true
	for _, v := range labels[1:] {
		if v != labels[0] {
			constant = false
			break
		}
	}
	if constant {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(scores, labels, nil)
}

func rootMeanSquare(labels, preds []float64) float64 {
	var sum float64
	for i := range labels {
		d := preds[i] - labels[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(labels)))
}

func toFloat64(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
