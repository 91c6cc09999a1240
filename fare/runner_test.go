package fare

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"taxifare/config"
	"taxifare/db"
)

var sampleTrip = TaxiTrip{
	VendorID: "VTS", RateCode: "1", PassengerCount: 1,
	TripTime: 1140, TripDistance: 3.75, PaymentType: "CRD",
}

type fakeRecorder struct {
	records []db.TrainingRecord
	err     error
}

func (r *fakeRecorder) RecordTraining(_ context.Context, rec db.TrainingRecord) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.records = append(r.records, rec)
	return int64(len(r.records)), nil
}

func TestRunColdStartTrainsEvaluatesAndPredicts(t *testing.T) {
	s := testSettings(t)
	loader := newCountingLoader()
	recorder := &fakeRecorder{}
	var out bytes.Buffer

	r := &Runner{Settings: s, Loader: loader, Recorder: recorder, Out: &out}
	prediction, err := r.Run(context.Background(), sampleTrip)
	require.NoError(t, err)

	assert.Equal(t, []string{s.TrainPath, s.TestPath}, loader.paths)
	assert.FileExists(t, s.ModelPath)

	text := out.String()
	assert.Contains(t, text, "Metrics for "+ModelName+" model")
	assert.Contains(t, text, "R2 Score:")
	assert.Contains(t, text, "RMS loss:")
	assert.Contains(t, text, "Predicted fare: $"+FormatFare(prediction.FareAmount)+"\n")
	assert.GreaterOrEqual(t, prediction.FareAmount, float32(0))

	require.Len(t, recorder.records, 1)
	rec := recorder.records[0]
	assert.Equal(t, ModelName, rec.ModelName)
	assert.Equal(t, 400, rec.TrainRows)
	assert.Equal(t, 100, rec.TestRows)
	assert.Greater(t, rec.RSquared, 0.8)
}

func TestRunWarmStartSkipsTraining(t *testing.T) {
	s := testSettings(t)
	cold := &Runner{Settings: s, Loader: newCountingLoader(), Out: &bytes.Buffer{}}
	first, err := cold.Run(context.Background(), sampleTrip)
	require.NoError(t, err)

	loader := newCountingLoader()
	var out bytes.Buffer
	warm := &Runner{Settings: s, Loader: loader, Out: &out}
	second, err := warm.Run(context.Background(), sampleTrip)
	require.NoError(t, err)

	assert.Empty(t, loader.paths)
	assert.NotContains(t, out.String(), "Metrics for")
	assert.Equal(t, "Predicted fare: $"+FormatFare(second.FareAmount)+"\n", out.String())
	assert.Equal(t, first.FareAmount, second.FareAmount)
}

func TestRunUsesInjectedExistenceCheck(t *testing.T) {
	s := testSettings(t)
	loader := newCountingLoader()
	var checked string
	r := &Runner{
		Settings: s,
		Loader:   loader,
		ModelExists: func(path string) bool {
			checked = path
			return false
		},
		Out: &bytes.Buffer{},
	}
	_, err := r.Run(context.Background(), sampleTrip)
	require.NoError(t, err)
	assert.Equal(t, s.ModelPath, checked)
	assert.Len(t, loader.paths, 2)
}

func TestRunCorruptModelFails(t *testing.T) {
	s := testSettings(t)
	require.NoError(t, os.WriteFile(s.ModelPath, []byte("not a zip"), 0o644))

	loader := newCountingLoader()
	var out bytes.Buffer
	r := &Runner{Settings: s, Loader: loader, Out: &out}
	_, err := r.Run(context.Background(), sampleTrip)

	assert.ErrorContains(t, err, "load model")
	assert.Empty(t, loader.paths)
	assert.Empty(t, out.String())
}

func TestRunMissingTrainingDataFails(t *testing.T) {
	s := testSettings(t)
	require.NoError(t, os.Remove(s.TrainPath))

	var out bytes.Buffer
	r := &Runner{Settings: s, Loader: newCountingLoader(), Out: &out}
	_, err := r.Run(context.Background(), sampleTrip)

	assert.Error(t, err)
	assert.NoFileExists(t, s.ModelPath)
	assert.Empty(t, out.String())
}

func TestRunNonFiniteTrainingDataLeavesNoModel(t *testing.T) {
	s := testSettings(t)
	f, err := os.OpenFile(s.TrainPath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("VTS,1,1,600,2.5,CRD,NaN\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var out bytes.Buffer
	r := &Runner{Settings: s, Loader: newCountingLoader(), Out: &out}
	_, err = r.Run(context.Background(), sampleTrip)
	assert.ErrorContains(t, err, "NaN or infinite")
	assert.NoFileExists(t, s.ModelPath)
	assert.Empty(t, out.String())

	// once the data is fixed the next run trains normally
	writeTripsCSV(t, s.TrainPath, 400, 1)
	_, err = r.Run(context.Background(), sampleTrip)
	require.NoError(t, err)
	assert.FileExists(t, s.ModelPath)
	assert.Contains(t, out.String(), "Predicted fare: $")
}

func TestRunStalePolicies(t *testing.T) {
	tests := []struct {
		policy     string
		wantLoads  int
		wantWarned bool
	}{
		{config.StaleWarn, 0, true},
		{config.StaleIgnore, 0, false},
		{config.StaleRetrain, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			s := testSettings(t)
			s.StalePolicy = tt.policy
			_, err := (&Runner{Settings: s, Loader: newCountingLoader(), Out: &bytes.Buffer{}}).
				Run(context.Background(), sampleTrip)
			require.NoError(t, err)

			// Grow the training file and push its mtime forward.
			writeTripsCSV(t, s.TrainPath, 450, 3)
			later := time.Now().Add(time.Hour)
			require.NoError(t, os.Chtimes(s.TrainPath, later, later))

			core, logs := observer.New(zap.WarnLevel)
			loader := newCountingLoader()
			r := &Runner{Settings: s, Loader: loader, Logger: zap.New(core), Out: &bytes.Buffer{}}
			_, err = r.Run(context.Background(), sampleTrip)
			require.NoError(t, err)

			assert.Len(t, loader.paths, tt.wantLoads)
			warned := logs.FilterMessageSnippet("training data changed").Len() > 0
			assert.Equal(t, tt.wantWarned, warned)
		})
	}
}

func TestTrainAndEvaluateRecorderFailureIsNotFatal(t *testing.T) {
	s := testSettings(t)
	core, logs := observer.New(zap.WarnLevel)
	r := &Runner{
		Settings: s,
		Loader:   newCountingLoader(),
		Recorder: &fakeRecorder{err: errors.New("disk full")},
		Logger:   zap.New(core),
		Out:      &bytes.Buffer{},
	}
	metrics, err := r.TrainAndEvaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, metrics.Count)
	assert.Equal(t, 1, logs.FilterMessage("failed to record training run").Len())
}

func TestTrainAndEvaluateCancelled(t *testing.T) {
	s := testSettings(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Settings: s, Loader: newCountingLoader(), Out: &bytes.Buffer{}}
	_, err := r.TrainAndEvaluate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, s.ModelPath)
}

func TestModelArtifactExists(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, ModelArtifactExists(dir))
	assert.False(t, ModelArtifactExists(dir+"/Model.zip"))
	require.NoError(t, os.WriteFile(dir+"/Model.zip", []byte("x"), 0o644))
	assert.True(t, ModelArtifactExists(dir+"/Model.zip"))
}
