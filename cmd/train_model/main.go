package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/gocarina/gocsv"

	"taxifare/config"
	"taxifare/db"
	"taxifare/fare"
	"taxifare/logging"
)

type args struct {
	Config  string `arg:"--config" default:"config.yaml" help:"path to the YAML config file"`
	Seed    *int64 `arg:"--seed" help:"override the configured seed"`
	History int    `arg:"--history" help:"list the N most recent training runs and exit"`
	CSV     bool   `arg:"--csv" help:"print the history as CSV"`
}

// historyRow is the CSV layout of one training run.
type historyRow struct {
	ID                   int64   `csv:"id"`
	TrainedAt            string  `csv:"trained_at"`
	ModelName            string  `csv:"model_name"`
	ModelPath            string  `csv:"model_path"`
	RSquared             float64 `csv:"r_squared"`
	RootMeanSquaredError float64 `csv:"rmse"`
	MeanAbsoluteError    float64 `csv:"mae"`
	MeanSquaredError     float64 `csv:"mse"`
	TrainRows            int     `csv:"train_rows"`
	TestRows             int     `csv:"test_rows"`
}

func main() {
	var a args
	arg.MustParse(&a)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, a, os.Stdout); err != nil {
		log.Fatalf("train_model: %v", err)
	}
}

func run(ctx context.Context, a args, out io.Writer) error {
	cfg, err := config.Load(a.Config)
	if err != nil {
		return err
	}
	if a.Seed != nil {
		cfg.Seed = *a.Seed
	}

	var store *db.Store
	if cfg.History.DBPath != "" {
		if store, err = db.Open(cfg.History.DBPath); err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
	}

	if a.History > 0 {
		if store == nil {
			return fmt.Errorf("history.db_path is not configured")
		}
		return printHistory(ctx, store, a.History, a.CSV, out)
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	runner := fare.NewRunner(cfg, logger, nil, out)
	if store != nil {
		runner.Recorder = store
	}
	if _, err := runner.TrainAndEvaluate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "model saved to %s\n", runner.Settings.ModelPath)
	return nil
}

func printHistory(ctx context.Context, store *db.Store, limit int, asCSV bool, out io.Writer) error {
	records, err := store.RecentTrainings(ctx, limit)
	if err != nil {
		return err
	}
	if asCSV {
		rows := make([]historyRow, 0, len(records))
		for _, rec := range records {
			rows = append(rows, historyRow{
				ID:                   rec.ID,
				TrainedAt:            rec.TrainedAt.UTC().Format(time.RFC3339),
				ModelName:            rec.ModelName,
				ModelPath:            rec.ModelPath,
				RSquared:             rec.RSquared,
				RootMeanSquaredError: rec.RootMeanSquaredError,
				MeanAbsoluteError:    rec.MeanAbsoluteError,
				MeanSquaredError:     rec.MeanSquaredError,
				TrainRows:            rec.TrainRows,
				TestRows:             rec.TestRows,
			})
		}
		return gocsv.Marshal(rows, out)
	}
	for _, rec := range records {
		fmt.Fprintf(out, "%4d  %s  %-24s r2=%.4f rmse=%.4f train=%d test=%d  %s\n",
			rec.ID, rec.TrainedAt.Local().Format(time.DateTime), rec.ModelName,
			rec.RSquared, rec.RootMeanSquaredError, rec.TrainRows, rec.TestRows, rec.ModelPath)
	}
	return nil
}
