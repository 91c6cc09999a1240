// Package fare wires the taxi fare data set to the ml pipeline: schema,
// pipeline composition, training, evaluation and single-trip prediction.
package fare

import (
	"taxifare/data"
)

// Column names, shared by the loader schema and the pipeline.
const (
	ColVendorID       = "VendorId"
	ColRateCode       = "RateCode"
	ColPassengerCount = "PassengerCount"
	ColTripTime       = "TripTime"
	ColTripDistance   = "TripDistance"
	ColPaymentType    = "PaymentType"
	ColFareAmount     = "FareAmount"

	ColLabel    = "Label"
	ColFeatures = "Features"
	ColScore    = "Score"
)

type TaxiTrip struct {
	VendorID       string
	RateCode       string
	PassengerCount float32
	TripTime       float32
	TripDistance   float32
	PaymentType    string
	FareAmount     float32
}

type FarePrediction struct {
	FareAmount float32
}

// Schema is the fixed layout of taxi-fare-train.csv and taxi-fare-test.csv.
func Schema() data.Schema {
	return data.Schema{
		{Name: ColVendorID, Type: data.Text, Index: 0},
		{Name: ColRateCode, Type: data.Text, Index: 1},
		{Name: ColPassengerCount, Type: data.Float32, Index: 2},
		{Name: ColTripTime, Type: data.Float32, Index: 3},
		{Name: ColTripDistance, Type: data.Float32, Index: 4},
		{Name: ColPaymentType, Type: data.Text, Index: 5},
		{Name: ColFareAmount, Type: data.Float32, Index: 6},
	}
}

// TripsTable builds a table with the Schema columns from trips.
func TripsTable(trips ...TaxiTrip) (*data.Table, error) {
	n := len(trips)
	vendors := make([]string, n)
	rates := make([]string, n)
	payments := make([]string, n)
	passengers := make([]float32, n)
	times := make([]float32, n)
	distances := make([]float32, n)
	fares := make([]float32, n)
	for i, trip := range trips {
		vendors[i] = trip.VendorID
		rates[i] = trip.RateCode
		payments[i] = trip.PaymentType
		passengers[i] = trip.PassengerCount
		times[i] = trip.TripTime
		distances[i] = trip.TripDistance
		fares[i] = trip.FareAmount
	}

	table := data.NewTable(n)
	columns := []*data.Column{
		data.NewTextColumn(ColVendorID, vendors),
		data.NewTextColumn(ColRateCode, rates),
		data.NewFloat32Column(ColPassengerCount, passengers),
		data.NewFloat32Column(ColTripTime, times),
		data.NewFloat32Column(ColTripDistance, distances),
		data.NewTextColumn(ColPaymentType, payments),
		data.NewFloat32Column(ColFareAmount, fares),
	}
	for _, c := range columns {
		if err := table.Add(c); err != nil {
			return nil, err
		}
	}
	return table, nil
}
