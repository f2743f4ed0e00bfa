package score

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"trade-signal-radar/internal/signal"
)

func inferredInputs(tier signal.QualityTier) Inputs {
	return Inputs{
		Tier:            tier,
		AssetProvenance: signal.ProvenanceInferred,
		DirProvenance:   signal.ProvenanceInferred,
		EntryProvenance: signal.ProvenanceExplicit,
	}
}

func TestScoreTierAnchors(t *testing.T) {
	s := New(Options{})

	require.True(t, s.Score(inferredInputs(signal.TierVerified)).Equal(decimal.NewFromInt(90)))
	require.True(t, s.Score(inferredInputs(signal.TierAcceptable)).Equal(decimal.NewFromInt(65)))
	require.True(t, s.Score(inferredInputs(signal.TierPoor)).Equal(decimal.NewFromInt(20)))
}

func TestScoreAllExplicitBonus(t *testing.T) {
	s := New(Options{})

	in := Inputs{
		Tier:            signal.TierAcceptable,
		AssetProvenance: signal.ProvenanceExplicit,
		DirProvenance:   signal.ProvenanceExplicit,
		EntryProvenance: signal.ProvenanceExplicit,
	}
	require.True(t, s.Score(in).Equal(decimal.NewFromInt(75)))
}

func TestScorePositionalEntryPenalty(t *testing.T) {
	s := New(Options{})

	in := Inputs{
		Tier:            signal.TierVerified,
		AssetProvenance: signal.ProvenanceExplicit,
		DirProvenance:   signal.ProvenanceExplicit,
		EntryProvenance: signal.ProvenancePositional,
	}
	require.True(t, s.Score(in).Equal(decimal.NewFromInt(80)))
}

func TestScoreClampsToHundred(t *testing.T) {
	s := New(Options{})

	in := Inputs{
		Tier:            signal.TierVerified,
		AssetProvenance: signal.ProvenanceExplicit,
		DirProvenance:   signal.ProvenanceExplicit,
		EntryProvenance: signal.ProvenanceExplicit,
	}
	require.True(t, s.Score(in).Equal(decimal.NewFromInt(100)))
}

func TestScoreHistoryBlendFullWeight(t *testing.T) {
	s := New(Options{SampleCap: 50, MaxHistoryWeight: 0.5})

	in := inferredInputs(signal.TierAcceptable)
	in.Stats = &signal.SourceStats{
		Source:          "alpha",
		SampleCount:     50,
		AccuracyPercent: decimal.NewFromInt(80),
	}

	// w = 0.5; 65*0.5 + 80*0.5 = 72.5
	require.True(t, s.Score(in).Equal(decimal.NewFromFloat(72.5)))
}

func TestScoreHistoryBlendPartialWeight(t *testing.T) {
	s := New(Options{SampleCap: 50, MaxHistoryWeight: 0.5})

	in := inferredInputs(signal.TierAcceptable)
	in.Stats = &signal.SourceStats{
		Source:          "alpha",
		SampleCount:     25,
		AccuracyPercent: decimal.NewFromInt(80),
	}

	// w = 0.5 * 25/50 = 0.25; 65*0.75 + 80*0.25 = 68.75
	require.True(t, s.Score(in).Equal(decimal.NewFromFloat(68.75)))
}

func TestScoreSampleCountAboveCapSaturates(t *testing.T) {
	s := New(Options{SampleCap: 50, MaxHistoryWeight: 0.5})

	in := inferredInputs(signal.TierAcceptable)
	in.Stats = &signal.SourceStats{SampleCount: 500, AccuracyPercent: decimal.NewFromInt(80)}

	require.True(t, s.Score(in).Equal(decimal.NewFromFloat(72.5)))
}

func TestScoreZeroSamplesIgnoresHistory(t *testing.T) {
	s := New(Options{})

	in := inferredInputs(signal.TierVerified)
	in.Stats = &signal.SourceStats{SampleCount: 0, AccuracyPercent: decimal.NewFromInt(10)}

	require.True(t, s.Score(in).Equal(decimal.NewFromInt(90)))
}

func TestScorePoorSourceDragsScoreDown(t *testing.T) {
	s := New(Options{SampleCap: 50, MaxHistoryWeight: 0.5})

	in := inferredInputs(signal.TierVerified)
	in.Stats = &signal.SourceStats{SampleCount: 50, AccuracyPercent: decimal.NewFromInt(10)}

	// 90*0.5 + 10*0.5 = 50
	require.True(t, s.Score(in).Equal(decimal.NewFromInt(50)))
}

func TestNewDefaults(t *testing.T) {
	s := New(Options{SampleCap: -1, MaxHistoryWeight: 2})
	require.Equal(t, 50, s.opts.SampleCap)
	require.InDelta(t, 0.5, s.opts.MaxHistoryWeight, 1e-9)
}
