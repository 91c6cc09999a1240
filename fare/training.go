package fare

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"taxifare/config"
	"taxifare/data"
	"taxifare/ml"
)

// ModelName identifies the trainer in logs and training history.
const ModelName = ml.KindBoostedTreeRegression

// Model metadata keys.
const (
	metaTrainRows    = "train_rows"
	metaTrainSize    = "train_file_size"
	metaTrainModTime = "train_file_mod_time"
)

type TableLoader interface {
	LoadFile(path string, schema data.Schema) (*data.Table, error)
}

// Settings is the explicit configuration threaded through every stage.
type Settings struct {
	TrainPath   string
	TestPath    string
	ModelPath   string
	Seed        int64
	StalePolicy string
	// Trainer overrides the default trainer options when set.
	Trainer *ml.BoostedTreeOptions
}

func NewSettings(cfg *config.Config) Settings {
	return Settings{
		TrainPath:   cfg.TrainPath(),
		TestPath:    cfg.TestPath(),
		ModelPath:   cfg.ModelPath(),
		Seed:        cfg.Seed,
		StalePolicy: cfg.Model.StalePolicy,
	}
}

func (s Settings) trainerOptions() ml.BoostedTreeOptions {
	if s.Trainer != nil {
		return *s.Trainer
	}
	return trainerOptions(s.Seed)
}

// Train loads the training file and fits the fare pipeline on all of it.
// The returned model carries the training file fingerprint as metadata.
func Train(ctx context.Context, loader TableLoader, s Settings, logger *zap.Logger) (*ml.TransformerChain, error) {
	table, err := loader.LoadFile(s.TrainPath, Schema())
	if err != nil {
		return nil, fmt.Errorf("load training data: %w", err)
	}
	model, err := buildPipeline(s.trainerOptions(), logger).Fit(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("fit pipeline: %w", err)
	}
	md := map[string]string{metaTrainRows: strconv.Itoa(table.Rows())}
	if size, modTime, ok := fileFingerprint(s.TrainPath); ok {
		md[metaTrainSize] = size
		md[metaTrainModTime] = modTime
	}
	return model.WithMetadata(md), nil
}

// Evaluate scores the held-out file with model.
func Evaluate(ctx context.Context, loader TableLoader, model ml.Model, testPath string) (ml.RegressionMetrics, error) {
	if err := ctx.Err(); err != nil {
		return ml.RegressionMetrics{}, err
	}
	table, err := loader.LoadFile(testPath, Schema())
	if err != nil {
		return ml.RegressionMetrics{}, fmt.Errorf("load test data: %w", err)
	}
	scored, err := model.Transform(table)
	if err != nil {
		return ml.RegressionMetrics{}, fmt.Errorf("score test data: %w", err)
	}
	return ml.EvaluateRegression(scored, ColLabel, ColScore)
}

func PrintMetrics(w io.Writer, name string, m ml.RegressionMetrics) {
	fmt.Fprintln(w, "*************************************************")
	fmt.Fprintf(w, "*       Metrics for %s model\n", name)
	fmt.Fprintln(w, "*------------------------------------------------")
	fmt.Fprintf(w, "*       LossFn:        %.2f\n", m.LossFunction)
	fmt.Fprintf(w, "*       R2 Score:      %.2f\n", m.RSquared)
	fmt.Fprintf(w, "*       Absolute loss: %.2f\n", m.MeanAbsoluteError)
	fmt.Fprintf(w, "*       Squared loss:  %.2f\n", m.MeanSquaredError)
	fmt.Fprintf(w, "*       RMS loss:      %.2f\n", m.RootMeanSquaredError)
	fmt.Fprintln(w, "*************************************************")
}

func fileFingerprint(path string) (size, modTime string, ok bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", "", false
	}
	return strconv.FormatInt(info.Size(), 10), info.ModTime().UTC().Format(time.RFC3339Nano), true
}
