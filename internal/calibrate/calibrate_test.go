package calibrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"trade-signal-radar/internal/signal"
)

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// judgeableSignal builds a LONG signal whose outcome is determined by whether
// the target sits above the entry.
func judgeableSignal(source, id string, entry, target int64) signal.Signal {
	return signal.Signal{
		ID:          id,
		Source:      source,
		Asset:       "BTC",
		Direction:   signal.DirectionLong,
		EntryPrice:  dec(entry),
		TargetPrice: dec(target),
		QualityTier: signal.TierVerified,
		IsValid:     true,
	}
}

func testEngine() *Engine {
	return New(Options{MinSamples: 10, AnomalyFactor: decimal.NewFromInt(3)}, zerolog.Nop())
}

func TestSourceAccuracy(t *testing.T) {
	e := testEngine()

	var snapshot []signal.Signal
	for i := 0; i < 9; i++ {
		snapshot = append(snapshot, judgeableSignal("alpha", "", 45000, 47000))
	}
	for i := 0; i < 3; i++ {
		snapshot = append(snapshot, judgeableSignal("alpha", "", 45000, 44000))
	}

	stats, err := e.SourceAccuracy(context.Background(), snapshot)
	require.NoError(t, err)
	require.Len(t, stats, 1)

	require.Equal(t, "alpha", stats[0].Source)
	require.Equal(t, 12, stats[0].SampleCount)
	require.True(t, stats[0].AccuracyPercent.Equal(decimal.NewFromInt(75)), "got %s", stats[0].AccuracyPercent)
	require.False(t, stats[0].LastRecomputed.IsZero())
}

func TestSourceAccuracySkipsThinSources(t *testing.T) {
	e := testEngine()

	var snapshot []signal.Signal
	for i := 0; i < 9; i++ {
		snapshot = append(snapshot, judgeableSignal("thin", "", 45000, 47000))
	}

	stats, err := e.SourceAccuracy(context.Background(), snapshot)
	require.NoError(t, err)
	require.Empty(t, stats)
}

func TestSourceAccuracyIgnoresUnjudgeable(t *testing.T) {
	e := testEngine()

	snapshot := []signal.Signal{
		{Source: "alpha", Direction: signal.DirectionLong, EntryPrice: dec(45000)},
		{Source: "alpha", Direction: signal.DirectionLong, TargetPrice: dec(47000)},
	}
	for i := 0; i < 10; i++ {
		snapshot = append(snapshot, judgeableSignal("alpha", "", 45000, 47000))
	}

	stats, err := e.SourceAccuracy(context.Background(), snapshot)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, 10, stats[0].SampleCount)
}

func TestSourceAccuracyShortDirection(t *testing.T) {
	e := testEngine()

	var snapshot []signal.Signal
	for i := 0; i < 10; i++ {
		snapshot = append(snapshot, signal.Signal{
			Source:      "bear",
			Asset:       "ETH",
			Direction:   signal.DirectionShort,
			EntryPrice:  dec(3200),
			TargetPrice: dec(3000),
		})
	}

	stats, err := e.SourceAccuracy(context.Background(), snapshot)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.True(t, stats[0].AccuracyPercent.Equal(decimal.NewFromInt(100)))
}

func TestFlagAnomalies(t *testing.T) {
	e := testEngine()

	snapshot := []signal.Signal{
		judgeableSignal("alpha", "sig-1", 20000, 22000),
		judgeableSignal("alpha", "sig-2", 60000, 62000),
	}
	prices := map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(65000),
	}

	updated, err := e.FlagAnomalies(context.Background(), snapshot, prices)
	require.NoError(t, err)
	require.Len(t, updated, 1)

	// 65000/20000 = 3.25 >= 3.0
	require.Equal(t, "sig-1", updated[0].ID)
	require.False(t, updated[0].IsValid)
	require.Equal(t, signal.TierPoor, updated[0].QualityTier)

	// the snapshot itself is untouched; the caller applies the update-set.
	require.True(t, snapshot[0].IsValid)
}

func TestFlagAnomaliesEntryAboveReference(t *testing.T) {
	e := testEngine()

	snapshot := []signal.Signal{judgeableSignal("alpha", "sig-3", 200000, 210000)}
	prices := map[string]decimal.Decimal{"BTC": decimal.NewFromInt(65000)}

	updated, err := e.FlagAnomalies(context.Background(), snapshot, prices)
	require.NoError(t, err)
	require.Len(t, updated, 1)
}

func TestFlagAnomaliesSkipsMissingReference(t *testing.T) {
	e := testEngine()

	snapshot := []signal.Signal{judgeableSignal("alpha", "sig-4", 20000, 22000)}

	updated, err := e.FlagAnomalies(context.Background(), snapshot, map[string]decimal.Decimal{})
	require.NoError(t, err)
	require.Empty(t, updated)
}

func TestFlagAnomaliesSkipsAlreadyRevoked(t *testing.T) {
	e := testEngine()

	sig := judgeableSignal("alpha", "sig-5", 20000, 22000)
	sig.IsValid = false
	sig.QualityTier = signal.TierPoor

	updated, err := e.FlagAnomalies(context.Background(), []signal.Signal{sig},
		map[string]decimal.Decimal{"BTC": decimal.NewFromInt(65000)})
	require.NoError(t, err)
	require.Empty(t, updated)
}

func TestRecalibrateRunsBothPhases(t *testing.T) {
	e := testEngine()

	var snapshot []signal.Signal
	for i := 0; i < 10; i++ {
		snapshot = append(snapshot, judgeableSignal("alpha", "", 60000, 62000))
	}
	snapshot = append(snapshot, judgeableSignal("alpha", "sig-low", 20000, 22000))

	fetch := func(ctx context.Context, assets []string) (map[string]decimal.Decimal, error) {
		require.Equal(t, []string{"BTC"}, assets)
		return map[string]decimal.Decimal{"BTC": decimal.NewFromInt(65000)}, nil
	}

	res, err := e.Recalibrate(context.Background(), snapshot, fetch)
	require.NoError(t, err)
	require.Len(t, res.Stats, 1)
	require.Len(t, res.Updated, 1)
	require.Equal(t, "sig-low", res.Updated[0].ID)
}

func TestRecalibrateFetchFailureKeepsStats(t *testing.T) {
	e := testEngine()

	var snapshot []signal.Signal
	for i := 0; i < 10; i++ {
		snapshot = append(snapshot, judgeableSignal("alpha", "", 60000, 62000))
	}

	fetch := func(ctx context.Context, assets []string) (map[string]decimal.Decimal, error) {
		return nil, errors.New("venue down")
	}

	res, err := e.Recalibrate(context.Background(), snapshot, fetch)
	require.NoError(t, err)
	require.Len(t, res.Stats, 1)
	require.Empty(t, res.Updated)
}

func TestRecalibrateNilFetchSkipsAnomalies(t *testing.T) {
	e := testEngine()

	res, err := e.Recalibrate(context.Background(), []signal.Signal{
		judgeableSignal("alpha", "sig-6", 20000, 22000),
	}, nil)
	require.NoError(t, err)
	require.Empty(t, res.Updated)
}

func TestRecalibrateCancelledContext(t *testing.T) {
	e := testEngine()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var snapshot []signal.Signal
	for i := 0; i < 10; i++ {
		snapshot = append(snapshot, judgeableSignal("alpha", "", 60000, 62000))
	}

	_, err := e.SourceAccuracy(ctx, snapshot)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewDefaults(t *testing.T) {
	e := New(Options{}, zerolog.Nop())
	require.Equal(t, 10, e.opts.MinSamples)
	require.True(t, e.opts.AnomalyFactor.Equal(decimal.NewFromInt(3)))
}

func TestEngineClockStampsStats(t *testing.T) {
	e := testEngine()
	fixed := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	e.clock = func() time.Time { return fixed }

	var snapshot []signal.Signal
	for i := 0; i < 10; i++ {
		snapshot = append(snapshot, judgeableSignal("alpha", "", 60000, 62000))
	}

	stats, err := e.SourceAccuracy(context.Background(), snapshot)
	require.NoError(t, err)
	require.Equal(t, fixed, stats[0].LastRecomputed)
}
