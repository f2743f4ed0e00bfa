package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "signalradar", cfg.App.Name)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "0 0 */6 * * *", cfg.Calibration.Schedule)
	require.Equal(t, 10, cfg.Calibration.MinSamples)
	require.InDelta(t, 3.0, cfg.Calibration.AnomalyFactor, 1e-9)
	require.Equal(t, 50, cfg.Scoring.SampleCap)
	require.InDelta(t, 0.5, cfg.Scoring.MaxHistoryWeight, 1e-9)
	require.Equal(t, "USDT", cfg.MarketData.QuoteAsset)
	require.False(t, cfg.Alerting.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  environment: production
calibration:
  min_samples: 25
validation:
  ranges:
    op:
      min: 0.5
      max: 20
extraction:
  aliases:
    op: OP
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "production", cfg.App.Environment)
	require.Equal(t, 25, cfg.Calibration.MinSamples)

	vopts := cfg.ValidatorOptions()
	r, ok := vopts.Ranges["OP"]
	require.True(t, ok, "configured asset range should survive key uppercasing")
	require.True(t, r.Min.Equal(decimal.NewFromFloat(0.5)))
	require.True(t, r.Max.Equal(decimal.NewFromInt(20)))

	eopts := cfg.ExtractorOptions()
	require.Equal(t, "OP", eopts.Aliases["op"])
	require.Equal(t, "BTC", eopts.Aliases["bitcoin"], "built-in vocabulary should be preserved")
}

func TestLoadRejectsMalformedRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
validation:
  ranges:
    btc:
      min: 100
      max: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "validation.ranges")
}

func TestLoadRejectsTelegramWithoutCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
alerting:
  telegram:
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 100000}}
	require.Equal(t, 100000, cfg.ResolveMaxPoints(0))
	require.Equal(t, 500, cfg.ResolveMaxPoints(500))
}

func TestValidatorOptionsDefaultBand(t *testing.T) {
	cfg := &Config{Validation: ValidationConfig{DefaultMin: 0.01, DefaultMax: 1000000}}

	opts := cfg.ValidatorOptions()
	require.True(t, opts.Default.Min.Equal(decimal.NewFromFloat(0.01)))
	require.True(t, opts.Default.Max.Equal(decimal.NewFromInt(1000000)))

	r, ok := opts.Ranges["BTC"]
	require.True(t, ok)
	require.True(t, r.Min.Equal(decimal.NewFromInt(10000)))
}
