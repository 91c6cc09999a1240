package ml

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"taxifare/data"
)

var (
	testVendors  = []string{"CMT", "VTS"}
	testRates    = []string{"1", "2", "5"}
	testPayments = []string{"CRD", "CSH"}
)

// syntheticTrips builds a table whose fare is a noisy function of distance,
// time and rate code.
func syntheticTrips(t *testing.T, n int, seed int64) *data.Table {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	vendors := make([]string, n)
	rates := make([]string, n)
	payments := make([]string, n)
	passengers := make([]float32, n)
	times := make([]float32, n)
	distances := make([]float32, n)
	fares := make([]float32, n)
	for i := 0; i < n; i++ {
		vendors[i] = testVendors[rng.Intn(len(testVendors))]
		rates[i] = testRates[rng.Intn(len(testRates))]
		payments[i] = testPayments[rng.Intn(len(testPayments))]
		passengers[i] = float32(1 + rng.Intn(4))
		distances[i] = float32(0.5 + rng.Float64()*12)
		times[i] = float32(120 + float64(distances[i])*200 + rng.Float64()*300)
		fare := 2.5 + 2.4*float64(distances[i]) + 0.004*float64(times[i]) + rng.NormFloat64()*0.3
		if rates[i] == "2" {
			fare += 10
		}
		fares[i] = float32(fare)
	}

	table := data.NewTable(n)
	require.NoError(t, table.Add(data.NewTextColumn("VendorId", vendors)))
	require.NoError(t, table.Add(data.NewTextColumn("RateCode", rates)))
	require.NoError(t, table.Add(data.NewFloat32Column("PassengerCount", passengers)))
	require.NoError(t, table.Add(data.NewFloat32Column("TripTime", times)))
	require.NoError(t, table.Add(data.NewFloat32Column("TripDistance", distances)))
	require.NoError(t, table.Add(data.NewTextColumn("PaymentType", payments)))
	require.NoError(t, table.Add(data.NewFloat32Column("FareAmount", fares)))
	return table
}

func testChain(opts BoostedTreeOptions) *EstimatorChain {
	return NewEstimatorChain().
		Append(CopyColumns("Label", "FareAmount")).
		Append(OneHotEncoding("VendorIdEncoded", "VendorId")).
		Append(OneHotEncoding("RateCodeEncoded", "RateCode")).
		Append(OneHotEncoding("PaymentTypeEncoded", "PaymentType")).
		Append(Concatenate("Features", "VendorIdEncoded", "RateCodeEncoded", "PassengerCount",
			"TripTime", "TripDistance", "PaymentTypeEncoded")).
		Append(NewBoostedTreeRegressor("Label", "Features", opts))
}

func smallTreeOptions() BoostedTreeOptions {
	opts := DefaultBoostedTreeOptions()
	opts.NumberOfTrees = 40
	opts.NumberOfLeaves = 8
	opts.MinimumExampleCountPerLeaf = 5
	return opts
}
