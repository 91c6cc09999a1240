package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("Data", "taxi-fare-train.csv"), cfg.TrainPath())
	assert.Equal(t, filepath.Join("Data", "taxi-fare-test.csv"), cfg.TestPath())
	assert.Equal(t, filepath.Join("Data", "Model.zip"), cfg.ModelPath())
	assert.Equal(t, StaleWarn, cfg.Model.StalePolicy)
	assert.True(t, *cfg.Data.HasHeader)
	assert.Equal(t, ',', cfg.SeparatorRune())
	assert.Equal(t, "VTS", cfg.Predict.VendorID)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
seed: 7
data:
  dir: /tmp/taxi
  has_header: false
  separator: ";"
model:
  file: fare.zip
  stale_policy: retrain
log:
  level: debug
history:
  db_path: history.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, filepath.Join("/tmp/taxi", "fare.zip"), cfg.ModelPath())
	assert.Equal(t, filepath.Join("/tmp/taxi", "taxi-fare-train.csv"), cfg.TrainPath())
	assert.False(t, *cfg.Data.HasHeader)
	assert.Equal(t, ';', cfg.SeparatorRune())
	assert.Equal(t, StaleRetrain, cfg.Model.StalePolicy)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "history.db", cfg.History.DBPath)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown stale policy", content: "model:\n  stale_policy: sometimes\n"},
		{name: "multi char separator", content: "data:\n  separator: \"::\"\n"},
		{name: "malformed yaml", content: "data: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
