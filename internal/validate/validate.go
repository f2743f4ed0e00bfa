package validate

import (
	"github.com/shopspring/decimal"

	"trade-signal-radar/internal/signal"
)

// PriceRange bounds plausible entry prices for one asset.
type PriceRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Options hold the per-asset plausibility table. Ranges drift with real
// market prices, so they are injected configuration rather than constants.
type Options struct {
	Ranges map[string]PriceRange
	// Default applies to assets missing from Ranges.
	Default PriceRange
}

// Validator applies structural and range checks to extracted prices.
type Validator struct {
	opts Options
}

// New builds a validator around the given range table.
func New(opts Options) *Validator {
	return &Validator{opts: opts}
}

// Verdict is the categorical outcome of validation.
type Verdict struct {
	IsValid bool
	Tier    signal.QualityTier
}

// Check runs the validation rules in order: structural checks first, range
// lookup last. A failing record is still buildable; it is just marked poor.
func (v *Validator) Check(asset string, entry, target, stop *decimal.Decimal) Verdict {
	if entry == nil || !entry.IsPositive() {
		return Verdict{IsValid: false, Tier: signal.TierPoor}
	}

	if target != nil {
		if !target.IsPositive() || target.Equal(*entry) {
			return Verdict{IsValid: false, Tier: signal.TierPoor}
		}
	}

	r := v.rangeFor(asset)
	if entry.LessThan(r.Min) || entry.GreaterThan(r.Max) {
		return Verdict{IsValid: false, Tier: signal.TierPoor}
	}

	tier := signal.TierAcceptable
	if target != nil && stop != nil {
		tier = signal.TierVerified
	}
	return Verdict{IsValid: true, Tier: tier}
}

// RangeFor exposes the configured bounds for an asset, falling back to the
// default band for unlisted ones.
func (v *Validator) RangeFor(asset string) PriceRange {
	return v.rangeFor(asset)
}

func (v *Validator) rangeFor(asset string) PriceRange {
	if r, ok := v.opts.Ranges[asset]; ok {
		return r
	}
	return v.opts.Default
}
