package fare

import (
	"errors"
	"math"
	"strconv"

	"taxifare/data"
	"taxifare/ml"
)

// PredictionEngine scores one trip at a time against a loaded model.
type PredictionEngine struct {
	model ml.Model
}

func NewPredictionEngine(model ml.Model) *PredictionEngine {
	return &PredictionEngine{model: model}
}

func (e *PredictionEngine) Predict(trip TaxiTrip) (FarePrediction, error) {
	if e.model == nil {
		return FarePrediction{}, errors.New("model not loaded")
	}
	table, err := TripsTable(trip)
	if err != nil {
		return FarePrediction{}, err
	}
	scored, err := e.model.Transform(table)
	if err != nil {
		return FarePrediction{}, err
	}
	score, err := scored.TypedColumn(ColScore, data.Float32)
	if err != nil {
		return FarePrediction{}, err
	}
	return FarePrediction{FareAmount: score.Floats[0]}, nil
}

// FormatFare renders a fare with at most two decimals, trailing zeros
// trimmed.
func FormatFare(v float32) string {
	rounded := math.Round(float64(v)*100) / 100
	if rounded == 0 {
		// drop negative zero
		rounded = 0
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
