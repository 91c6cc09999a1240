package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"

	"taxifare/config"
	"taxifare/db"
	"taxifare/fare"
	"taxifare/logging"
)

type args struct {
	PassengerCount int     `arg:"positional,required" help:"number of passengers"`
	TripTime       int     `arg:"positional,required" help:"trip time in seconds"`
	TripDistance   float32 `arg:"positional,required" help:"trip distance"`
	Config         string  `arg:"--config" default:"config.yaml" help:"path to the YAML config file"`
	Vendor         string  `arg:"--vendor" help:"vendor id (default from config, VTS)"`
	RateCode       string  `arg:"--rate-code" help:"rate code (default from config, 1)"`
	PaymentType    string  `arg:"--payment-type" help:"payment type (default from config, CRD)"`
}

func (args) Description() string {
	return "Predicts a taxi fare, training and evaluating a model first when none is saved."
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, stdout io.Writer) error {
	var a args
	parser, err := arg.NewParser(arg.Config{Program: "taxifare"}, &a)
	if err != nil {
		return err
	}
	if err := parser.Parse(argv); err != nil {
		if errors.Is(err, arg.ErrHelp) {
			parser.WriteHelp(stdout)
			return nil
		}
		return fmt.Errorf("invalid arguments: %w", err)
	}

	cfg, err := config.Load(a.Config)
	if err != nil {
		return err
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

	runner := fare.NewRunner(cfg, logger, nil, stdout)
	if cfg.History.DBPath != "" {
		history := &lazyHistory{path: cfg.History.DBPath}
		defer history.Close()
		runner.Recorder = history
	}

	_, err = runner.Run(ctx, fare.TaxiTrip{
		VendorID:       pick(a.Vendor, cfg.Predict.VendorID),
		RateCode:       pick(a.RateCode, cfg.Predict.RateCode),
		PassengerCount: float32(a.PassengerCount),
		TripTime:       float32(a.TripTime),
		TripDistance:   a.TripDistance,
		PaymentType:    pick(a.PaymentType, cfg.Predict.PaymentType),
	})
	return err
}

// lazyHistory opens the history database on the first recorded run, so
// runs that only predict never touch it.
type lazyHistory struct {
	path  string
	store *db.Store
}

func (h *lazyHistory) RecordTraining(ctx context.Context, rec db.TrainingRecord) (int64, error) {
	if h.store == nil {
		store, err := db.Open(h.path)
		if err != nil {
			return 0, fmt.Errorf("open history %s: %w", h.path, err)
		}
		h.store = store
	}
	return h.store.RecordTraining(ctx, rec)
}

func (h *lazyHistory) Close() error {
	if h.store == nil {
		return nil
	}
	return h.store.Close()
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}
