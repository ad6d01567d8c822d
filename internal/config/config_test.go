package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTuningIsValid(t *testing.T) {
	assert.NoError(t, DefaultTuning().Validate())
}

func TestLoadTuning(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		check   func(t *testing.T, got Tuning)
	}{
		{
			name: "partial override keeps defaults",
			body: "fusion:\n  draw_base: 30\nevolution:\n  retrain_interval: 72h\n  min_samples: 80\n",
			check: func(t *testing.T, got Tuning) {
				assert.InDelta(t, 30, got.Fusion.DrawBase, 1e-9)
				assert.InDelta(t, 20, got.Fusion.DrawGapSlope, 1e-9)
				assert.Equal(t, 72*time.Hour, got.Evolution.RetrainInterval)
				assert.Equal(t, 80, got.Evolution.MinSamples)
				assert.InDelta(t, 1.5, got.Learning.DrawBoostStep, 1e-9)
			},
		},
		{
			name: "bounds override",
			body: "bounds:\n  draw_boost: {min: 0, max: 5}\n",
			check: func(t *testing.T, got Tuning) {
				assert.InDelta(t, 5, got.Bounds.DrawBoost.Max, 1e-9)
			},
		},
		{name: "field constraint violated", body: "learning:\n  missed_draw_rate: 1.5\n", wantErr: true},
		{name: "inverted range", body: "fusion:\n  draw_band: {min: 40, max: 10}\n", wantErr: true},
		{name: "inverted market limits", body: "fusion:\n  market_min: 99\n", wantErr: true},
		{name: "malformed yaml", body: "fusion: [", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tuning.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			got, err := LoadTuning(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestLoadTuningDefaults(t *testing.T) {
	got, err := LoadTuning("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTuning(), got)

	_, err = LoadTuning(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PREDICTOR_TEST_STR", "sqlite")
	t.Setenv("PREDICTOR_TEST_INT", "42")
	t.Setenv("PREDICTOR_TEST_BAD_INT", "forty")
	t.Setenv("PREDICTOR_TEST_DUR", "90m")
	t.Setenv("PREDICTOR_TEST_BAD_DUR", "soon")

	assert.Equal(t, "sqlite", getEnvWithDefault("PREDICTOR_TEST_STR", "file"))
	assert.Equal(t, "file", getEnvWithDefault("PREDICTOR_TEST_UNSET", "file"))
	assert.Equal(t, 42, getEnvIntWithDefault("PREDICTOR_TEST_INT", 1))
	assert.Equal(t, 1, getEnvIntWithDefault("PREDICTOR_TEST_BAD_INT", 1))
	assert.Equal(t, int64(42), getEnvInt64WithDefault("PREDICTOR_TEST_INT", 0))
	assert.Equal(t, 90*time.Minute, getEnvDurationWithDefault("PREDICTOR_TEST_DUR", time.Hour))
	assert.Equal(t, time.Hour, getEnvDurationWithDefault("PREDICTOR_TEST_BAD_DUR", time.Hour))
}

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", DriverFile)
	t.Setenv("LEARN_WINDOW_DAYS", "14")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001")
	t.Setenv("TUNING_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverFile, cfg.StoreDriver)
	assert.Equal(t, 14, cfg.LearnWindow)
	assert.Equal(t, int64(-1001), cfg.TelegramChatID)
	assert.Equal(t, 2*time.Hour, cfg.LockTTL)
	assert.Equal(t, DefaultTuning(), cfg.Tuning)
}
