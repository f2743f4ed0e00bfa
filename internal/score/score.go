package score

import (
	"github.com/shopspring/decimal"

	"trade-signal-radar/internal/signal"
)

// Options tune the confidence model.
type Options struct {
	// SampleCap bounds how much history is needed before a source's
	// recorded accuracy carries full weight in the blend.
	SampleCap int
	// MaxHistoryWeight caps the share of the final score contributed by
	// source history, even for long-established sources.
	MaxHistoryWeight float64
}

// Scorer maps parse completeness and validation outcome to a confidence
// value in [0,100]. It is pure and side-effect free.
type Scorer struct {
	opts Options
}

// New constructs a scorer; zero options fall back to cap 50 and weight 0.5.
func New(opts Options) *Scorer {
	if opts.SampleCap <= 0 {
		opts.SampleCap = 50
	}
	if opts.MaxHistoryWeight <= 0 || opts.MaxHistoryWeight > 1 {
		opts.MaxHistoryWeight = 0.5
	}
	return &Scorer{opts: opts}
}

// Inputs collects everything the scorer consumes.
type Inputs struct {
	Tier            signal.QualityTier
	AssetProvenance signal.Provenance
	DirProvenance   signal.Provenance
	EntryProvenance signal.Provenance
	// Stats is the source's trust profile if one is known.
	Stats *signal.SourceStats
}

var (
	hundred = decimal.NewFromInt(100)
	ten     = decimal.NewFromInt(10)
)

// Score computes the blended confidence.
func (s *Scorer) Score(in Inputs) decimal.Decimal {
	conf := tierAnchor(in.Tier)

	switch {
	case in.AssetProvenance == signal.ProvenanceExplicit &&
		in.DirProvenance == signal.ProvenanceExplicit &&
		in.EntryProvenance == signal.ProvenanceExplicit:
		conf = conf.Add(ten)
	case in.EntryProvenance == signal.ProvenancePositional:
		conf = conf.Sub(ten)
	}

	if in.Stats != nil && in.Stats.SampleCount > 0 {
		n := in.Stats.SampleCount
		if n > s.opts.SampleCap {
			n = s.opts.SampleCap
		}
		w := decimal.NewFromFloat(s.opts.MaxHistoryWeight).
			Mul(decimal.NewFromInt(int64(n))).
			Div(decimal.NewFromInt(int64(s.opts.SampleCap)))
		conf = conf.Mul(decimal.NewFromInt(1).Sub(w)).Add(in.Stats.AccuracyPercent.Mul(w))
	}

	return clamp(conf)
}

func tierAnchor(tier signal.QualityTier) decimal.Decimal {
	switch tier {
	case signal.TierVerified:
		return decimal.NewFromInt(90)
	case signal.TierAcceptable:
		return decimal.NewFromInt(65)
	default:
		return decimal.NewFromInt(20)
	}
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(hundred) {
		return hundred
	}
	return d
}
