package signal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the traded side asserted by a message.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// QualityTier labels how complete and plausible a parse was.
type QualityTier string

const (
	TierVerified   QualityTier = "verified"
	TierAcceptable QualityTier = "acceptable"
	TierPoor       QualityTier = "poor"
)

// Provenance records which strategy produced an extracted field, so scoring
// can discount positionally-guessed values.
type Provenance string

const (
	ProvenanceExplicit   Provenance = "explicit"
	ProvenanceInferred   Provenance = "inferred"
	ProvenancePositional Provenance = "positional"
	ProvenanceNone       Provenance = "none"
)

// idNamespace keys the deterministic signal identity. Changing it would
// re-key every stored signal.
var idNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// ID derives the deterministic identity of a signal from its asset and the
// originating message. Re-ingesting the same message yields the same id.
func ID(asset, messageID string) string {
	return uuid.NewSHA1(idNamespace, []byte(asset+"\x00"+messageID)).String()
}

// Signal is a single structured trading assertion extracted from a message.
type Signal struct {
	ID          string
	Source      string
	MessageID   string
	Asset       string
	Direction   Direction
	EntryPrice  *decimal.Decimal
	TargetPrice *decimal.Decimal
	StopLoss    *decimal.Decimal
	RawText     string

	ExtractedAt      time.Time
	MessageTimestamp time.Time

	Confidence  decimal.Decimal
	QualityTier QualityTier
	IsValid     bool

	// How each core field was found. Retained for auditing; the scorer
	// consumes these at build time.
	AssetProvenance Provenance
	DirProvenance   Provenance
	EntryProvenance Provenance
}

// Outcome reports whether the signal's target is on the profitable side of
// its entry for the stated direction. The second return is false when the
// signal lacks the fields needed to judge it.
func (s *Signal) Outcome() (bool, bool) {
	if s.EntryPrice == nil || s.TargetPrice == nil {
		return false, false
	}
	switch s.Direction {
	case DirectionLong:
		return s.TargetPrice.GreaterThan(*s.EntryPrice), true
	case DirectionShort:
		return s.TargetPrice.LessThan(*s.EntryPrice), true
	default:
		return false, false
	}
}

// SourceStats aggregates the trust profile of one source.
type SourceStats struct {
	Source          string
	SampleCount     int
	AccuracyPercent decimal.Decimal
	LastRecomputed  time.Time
}
