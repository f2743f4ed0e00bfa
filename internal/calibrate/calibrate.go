package calibrate

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-signal-radar/internal/signal"
)

// Options tune the calibration pass. Both values drift with real markets and
// are injected from configuration.
type Options struct {
	// MinSamples is the evidence floor below which a source's accuracy is
	// left untouched.
	MinSamples int
	// AnomalyFactor is the entry/reference ratio at or above which a signal
	// is presumed misparsed.
	AnomalyFactor decimal.Decimal
}

// FetchFunc is the market-data capability the engine depends on. Missing
// assets are simply absent from the returned map.
type FetchFunc func(ctx context.Context, assets []string) (map[string]decimal.Decimal, error)

// Result is the update-set produced by one calibration pass.
type Result struct {
	Stats   []signal.SourceStats
	Updated []signal.Signal
}

// Engine recomputes source trust and anomaly flags over a snapshot of the
// persisted signal population. Computation is two-phase: read snapshot,
// derive update-set; the caller writes it back.
type Engine struct {
	opts   Options
	logger zerolog.Logger
	clock  func() time.Time
}

// New builds an engine; zero options fall back to 10 samples and factor 3.
func New(opts Options, logger zerolog.Logger) *Engine {
	if opts.MinSamples <= 0 {
		opts.MinSamples = 10
	}
	if opts.AnomalyFactor.LessThanOrEqual(decimal.NewFromInt(1)) {
		opts.AnomalyFactor = decimal.NewFromInt(3)
	}
	return &Engine{
		opts:   opts,
		logger: logger.With().Str("component", "calibrate").Logger(),
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Recalibrate runs both phases over the snapshot. A failing or partial
// reference-price fetch degrades to skipping the affected assets; it never
// aborts the accuracy phase or the other assets.
func (e *Engine) Recalibrate(ctx context.Context, snapshot []signal.Signal, fetch FetchFunc) (Result, error) {
	stats, err := e.SourceAccuracy(ctx, snapshot)
	if err != nil {
		return Result{}, err
	}

	res := Result{Stats: stats}

	assets := distinctAssets(snapshot)
	if len(assets) == 0 || fetch == nil {
		return res, nil
	}

	prices, err := fetch(ctx, assets)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		e.logger.Warn().Err(err).Msg("reference prices unavailable; skipping anomaly pass")
		return res, nil
	}

	updated, err := e.FlagAnomalies(ctx, snapshot, prices)
	if err != nil {
		return Result{}, err
	}
	res.Updated = updated
	return res, nil
}

// SourceAccuracy recomputes per-source accuracy from outcome-inferable
// fields. Sources with fewer than MinSamples judgeable signals are skipped.
func (e *Engine) SourceAccuracy(ctx context.Context, snapshot []signal.Signal) ([]signal.SourceStats, error) {
	type tally struct {
		total   int
		success int
	}
	tallies := make(map[string]*tally)

	for i := range snapshot {
		sig := &snapshot[i]
		ok, judgeable := sig.Outcome()
		if !judgeable {
			continue
		}
		t := tallies[sig.Source]
		if t == nil {
			t = &tally{}
			tallies[sig.Source] = t
		}
		t.total++
		if ok {
			t.success++
		}
	}

	sources := make([]string, 0, len(tallies))
	for src := range tallies {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	now := e.clock()
	stats := make([]signal.SourceStats, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := tallies[src]
		if t.total < e.opts.MinSamples {
			e.logger.Debug().Str("source", src).Int("samples", t.total).Msg("insufficient samples; accuracy unchanged")
			continue
		}
		accuracy := decimal.NewFromInt(int64(t.success * 100)).Div(decimal.NewFromInt(int64(t.total)))
		stats = append(stats, signal.SourceStats{
			Source:          src,
			SampleCount:     t.total,
			AccuracyPercent: accuracy,
			LastRecomputed:  now,
		})
	}
	return stats, nil
}

// FlagAnomalies compares entry prices against live references and returns
// the signals whose validity must be revoked. Assets without a reference
// price are left un-recalibrated.
func (e *Engine) FlagAnomalies(ctx context.Context, snapshot []signal.Signal, prices map[string]decimal.Decimal) ([]signal.Signal, error) {
	var updated []signal.Signal
	for i := range snapshot {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sig := snapshot[i]
		if sig.EntryPrice == nil {
			continue
		}
		ref, ok := prices[sig.Asset]
		if !ok || !ref.IsPositive() || !sig.EntryPrice.IsPositive() {
			continue
		}

		ratio := priceRatio(*sig.EntryPrice, ref)
		if ratio.LessThan(e.opts.AnomalyFactor) {
			continue
		}
		if !sig.IsValid && sig.QualityTier == signal.TierPoor {
			continue
		}

		sig.IsValid = false
		sig.QualityTier = signal.TierPoor
		updated = append(updated, sig)

		e.logger.Info().
			Str("id", sig.ID).
			Str("asset", sig.Asset).
			Str("entry", sig.EntryPrice.String()).
			Str("reference", ref.String()).
			Str("ratio", ratio.StringFixed(2)).
			Msg("entry price anomalous against live reference")
	}
	return updated, nil
}

func priceRatio(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a.Div(b)
	}
	return b.Div(a)
}

func distinctAssets(snapshot []signal.Signal) []string {
	seen := make(map[string]struct{})
	for i := range snapshot {
		if snapshot[i].EntryPrice == nil {
			continue
		}
		seen[snapshot[i].Asset] = struct{}{}
	}
	assets := make([]string, 0, len(seen))
	for a := range seen {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	return assets
}
