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
	"taxifare/db"
	"taxifare/ml"
)

type TrainingRecorder interface {
	RecordTraining(ctx context.Context, rec db.TrainingRecord) (int64, error)
}

// ModelArtifactExists reports whether a model file is present at path.
func ModelArtifactExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Runner executes one invocation: train and evaluate when no model file
// exists, then predict with the model read back from disk.
type Runner struct {
	Settings    Settings
	Loader      TableLoader
	ModelExists func(path string) bool
	// Recorder is optional.
	Recorder TrainingRecorder
	Logger   *zap.Logger
	Out      io.Writer
}

// NewRunner wires a Runner from cfg. recorder may be nil.
func NewRunner(cfg *config.Config, logger *zap.Logger, recorder TrainingRecorder, out io.Writer) *Runner {
	loader := data.NewLoader(data.LoaderOptions{
		HasHeader: *cfg.Data.HasHeader,
		Separator: cfg.SeparatorRune(),
		Encoding:  cfg.Data.Encoding,
	}, logger)
	return &Runner{
		Settings: NewSettings(cfg),
		Loader:   loader,
		Recorder: recorder,
		Logger:   logger,
		Out:      out,
	}
}

func (r *Runner) Run(ctx context.Context, trip TaxiTrip) (FarePrediction, error) {
	logger := r.logger()
	path := r.Settings.ModelPath

	existed := r.modelExists(path)
	if !existed {
		logger.Info("no model found, training", zap.String("model", path))
		if _, err := r.TrainAndEvaluate(ctx); err != nil {
			return FarePrediction{}, err
		}
	}

	model, err := ml.LoadFile(path)
	if err != nil {
		return FarePrediction{}, fmt.Errorf("load model: %w", err)
	}

	if existed && r.stale(model) {
		logger.Info("retraining stale model", zap.String("model", path))
		if _, err := r.TrainAndEvaluate(ctx); err != nil {
			return FarePrediction{}, err
		}
		if model, err = ml.LoadFile(path); err != nil {
			return FarePrediction{}, fmt.Errorf("load model: %w", err)
		}
	}

	prediction, err := NewPredictionEngine(model).Predict(trip)
	if err != nil {
		return FarePrediction{}, fmt.Errorf("predict: %w", err)
	}
	fmt.Fprintf(r.Out, "Predicted fare: $%s\n", FormatFare(prediction.FareAmount))
	return prediction, nil
}

// TrainAndEvaluate fits the pipeline, saves it, and evaluates the saved
// model against the test file. Metrics are printed and recorded.
func (r *Runner) TrainAndEvaluate(ctx context.Context) (ml.RegressionMetrics, error) {
	logger := r.logger()
	start := time.Now()

	model, err := Train(ctx, r.Loader, r.Settings, logger)
	if err != nil {
		return ml.RegressionMetrics{}, err
	}
	if err := ml.SaveFile(model, r.Settings.ModelPath); err != nil {
		return ml.RegressionMetrics{}, fmt.Errorf("save model: %w", err)
	}
	logger.Info("model saved",
		zap.String("model", r.Settings.ModelPath),
		zap.Duration("elapsed", time.Since(start)))

	saved, err := ml.LoadFile(r.Settings.ModelPath)
	if err != nil {
		return ml.RegressionMetrics{}, fmt.Errorf("reload model: %w", err)
	}
	metrics, err := Evaluate(ctx, r.Loader, saved, r.Settings.TestPath)
	if err != nil {
		return ml.RegressionMetrics{}, err
	}
	PrintMetrics(r.Out, ModelName, metrics)

	if r.Recorder != nil {
		rec := db.TrainingRecord{
			ModelName:            ModelName,
			ModelPath:            r.Settings.ModelPath,
			RSquared:             metrics.RSquared,
			RootMeanSquaredError: metrics.RootMeanSquaredError,
			MeanAbsoluteError:    metrics.MeanAbsoluteError,
			MeanSquaredError:     metrics.MeanSquaredError,
			TestRows:             metrics.Count,
			TrainedAt:            time.Now(),
		}
		if rows, err := strconv.Atoi(model.Metadata()[metaTrainRows]); err == nil {
			rec.TrainRows = rows
		} else {
			logger.Warn("model metadata has no training row count", zap.Error(err))
		}
		if _, err := r.Recorder.RecordTraining(ctx, rec); err != nil {
			logger.Warn("failed to record training run", zap.Error(err))
		}
	}
	return metrics, nil
}

// stale compares the training file on disk with the fingerprint stored in
// the model. The file is only stat'ed, never read.
func (r *Runner) stale(model ml.Model) bool {
	policy := r.Settings.StalePolicy
	if policy == config.StaleIgnore {
		return false
	}
	md := model.Metadata()
	wantSize, wantMod := md[metaTrainSize], md[metaTrainModTime]
	if wantSize == "" || wantMod == "" {
		return false
	}
	size, modTime, ok := fileFingerprint(r.Settings.TrainPath)
	if !ok || (size == wantSize && modTime == wantMod) {
		return false
	}
	if policy == config.StaleRetrain {
		return true
	}
	r.logger().Warn("training data changed since the model was trained; reusing existing model",
		zap.String("train_file", r.Settings.TrainPath),
		zap.String("model", r.Settings.ModelPath))
	return false
}

func (r *Runner) modelExists(path string) bool {
	if r.ModelExists != nil {
		return r.ModelExists(path)
	}
	return ModelArtifactExists(path)
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
