package fare

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"taxifare/data"
	"taxifare/ml"
)

const csvHeader = "vendor_id,rate_code,passenger_count,trip_time_in_secs,trip_distance,payment_type,fare_amount"

// writeTripsCSV writes n synthetic trips in the taxi-fare CSV layout.
func writeTripsCSV(t *testing.T, path string, n int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	vendors := []string{"CMT", "VTS"}
	rates := []string{"1", "2", "5"}
	payments := []string{"CRD", "CSH"}

	var b strings.Builder
	b.WriteString(csvHeader + "\n")
	for i := 0; i < n; i++ {
		rate := rates[rng.Intn(len(rates))]
		distance := 0.5 + rng.Float64()*12
		secs := 120 + distance*200 + rng.Float64()*300
		fare := 2.5 + 2.4*distance + 0.004*secs + rng.NormFloat64()*0.3
		if rate == "2" {
			fare += 10
		}
		fmt.Fprintf(&b, "%s,%s,%d,%d,%.2f,%s,%.2f\n",
			vendors[rng.Intn(len(vendors))], rate, 1+rng.Intn(4), int(secs), distance,
			payments[rng.Intn(len(payments))], fare)
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

// testSettings lays out a data directory under t.TempDir with fresh
// training and test files.
func testSettings(t *testing.T) Settings {
	t.Helper()
	dir := t.TempDir()
	s := Settings{
		TrainPath: filepath.Join(dir, "taxi-fare-train.csv"),
		TestPath:  filepath.Join(dir, "taxi-fare-test.csv"),
		ModelPath: filepath.Join(dir, "Model.zip"),
		Seed:      1,
		Trainer:   smallTrainerOptions(),
	}
	writeTripsCSV(t, s.TrainPath, 400, 1)
	writeTripsCSV(t, s.TestPath, 100, 2)
	return s
}

func smallTrainerOptions() *ml.BoostedTreeOptions {
	opts := ml.DefaultBoostedTreeOptions()
	opts.NumberOfTrees = 30
	opts.NumberOfLeaves = 8
	opts.MinimumExampleCountPerLeaf = 5
	opts.Seed = 1
	return &opts
}

// countingLoader records every file it is asked to load.
type countingLoader struct {
	inner *data.Loader
	paths []string
}

func newCountingLoader() *countingLoader {
	return &countingLoader{inner: data.NewLoader(data.DefaultLoaderOptions(), nil)}
}

func (l *countingLoader) LoadFile(path string, schema data.Schema) (*data.Table, error) {
	l.paths = append(l.paths, path)
	return l.inner.LoadFile(path, schema)
}
