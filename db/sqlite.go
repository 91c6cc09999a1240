package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TrainingRecord is one row of training_log.
type TrainingRecord struct {
	ID                   int64
	ModelName            string
	ModelPath            string
	RSquared             float64
	RootMeanSquaredError float64
	MeanAbsoluteError    float64
	MeanSquaredError     float64
	TrainRows            int
	TestRows             int
	TrainedAt            time.Time
}

// Store keeps the history of training runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	store := New(database)
	if err := store.Init(context.Background()); err != nil {
		database.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing handle. Init must be called before use.
func New(database *sql.DB) *Store {
	return &Store{db: database}
}

func (s *Store) Init(ctx context.Context) error {
	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50) NOT NULL,
        model_path TEXT NOT NULL,
        r_squared REAL,
        rmse REAL,
        mae REAL,
        mse REAL,
        train_rows INTEGER,
        test_rows INTEGER,
        trained_at DATETIME NOT NULL
    );`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// RecordTraining saves a training run and returns its row id.
func (s *Store) RecordTraining(ctx context.Context, rec TrainingRecord) (int64, error) {
	if rec.ModelName == "" {
		return 0, errors.New("model name is required")
	}
	if rec.TrainedAt.IsZero() {
		rec.TrainedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO training_log (model_name, model_path, r_squared, rmse, mae, mse, train_rows, test_rows, trained_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ModelName, rec.ModelPath, rec.RSquared, rec.RootMeanSquaredError,
		rec.MeanAbsoluteError, rec.MeanSquaredError, rec.TrainRows, rec.TestRows,
		rec.TrainedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentTrainings returns up to limit runs, newest first.
func (s *Store) RecentTrainings(ctx context.Context, limit int) ([]TrainingRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model_name, model_path, r_squared, rmse, mae, mse, train_rows, test_rows, trained_at
         FROM training_log ORDER BY trained_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TrainingRecord
	for rows.Next() {
		var rec TrainingRecord
		if err := rows.Scan(&rec.ID, &rec.ModelName, &rec.ModelPath, &rec.RSquared,
			&rec.RootMeanSquaredError, &rec.MeanAbsoluteError, &rec.MeanSquaredError,
			&rec.TrainRows, &rec.TestRows, &rec.TrainedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
