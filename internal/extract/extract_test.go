package extract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"trade-signal-radar/internal/signal"
)

func testOptions() Options {
	return Options{
		Aliases: map[string]string{
			"btc": "BTC", "bitcoin": "BTC", "xbt": "BTC",
			"eth": "ETH", "ethereum": "ETH",
			"sol": "SOL", "solana": "SOL",
		},
		ExplicitDirections: map[string]signal.Direction{
			"long": signal.DirectionLong, "buy": signal.DirectionLong,
			"short": signal.DirectionShort, "sell": signal.DirectionShort,
		},
		SentimentDirections: map[string]signal.Direction{
			"bullish": signal.DirectionLong,
			"bearish": signal.DirectionShort,
		},
		LocalizedDirections: map[string]signal.Direction{
			"largo": signal.DirectionLong, "compra": signal.DirectionLong,
			"corto": signal.DirectionShort, "venta": signal.DirectionShort,
		},
		EntryLabels:        []string{"entry", "entry zone", "entrada"},
		TargetLabels:       []string{"take profit", "tp", "target", "objetivo"},
		StopLabels:         []string{"stop loss", "stoploss", "stop-loss", "sl", "stop"},
		RangeEntryMidpoint: true,
	}
}

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestExtractLabeledFields(t *testing.T) {
	e := New(testOptions())

	res, ok := e.Extract("BTC/USDT LONG 45000 TP: 47000 SL: 44000")
	require.True(t, ok)

	require.Equal(t, "BTC", res.Asset)
	require.Equal(t, signal.ProvenanceExplicit, res.AssetProvenance)
	require.Equal(t, signal.DirectionLong, res.Direction)
	require.Equal(t, signal.ProvenanceExplicit, res.DirProvenance)

	require.NotNil(t, res.Entry)
	require.True(t, res.Entry.Equal(mustDec(t, "45000")))
	require.Equal(t, signal.ProvenancePositional, res.EntryProvenance)

	require.NotNil(t, res.Target)
	require.True(t, res.Target.Equal(mustDec(t, "47000")))
	require.NotNil(t, res.Stop)
	require.True(t, res.Stop.Equal(mustDec(t, "44000")))
}

func TestExtractShortWithWordLabels(t *testing.T) {
	e := New(testOptions())

	res, ok := e.Extract("ETH short 3200 target 3000 stop 3300")
	require.True(t, ok)

	require.Equal(t, "ETH", res.Asset)
	require.Equal(t, signal.DirectionShort, res.Direction)
	require.True(t, res.Entry.Equal(mustDec(t, "3200")))
	require.True(t, res.Target.Equal(mustDec(t, "3000")))
	require.True(t, res.Stop.Equal(mustDec(t, "3300")))
}

func TestExtractMissWithoutDirection(t *testing.T) {
	e := New(testOptions())

	_, ok := e.Extract("BTC is at 45000 right now")
	require.False(t, ok)
}

func TestExtractMissWithoutKnownAsset(t *testing.T) {
	e := New(testOptions())

	_, ok := e.Extract("DOGE long entry 0.1 target 0.2")
	require.False(t, ok)
}

func TestExtractAliasAndSentiment(t *testing.T) {
	e := New(testOptions())

	res, ok := e.Extract("Bitcoin looking bullish here, entry 45000")
	require.True(t, ok)

	require.Equal(t, "BTC", res.Asset)
	require.Equal(t, signal.ProvenanceInferred, res.AssetProvenance)
	require.Equal(t, signal.DirectionLong, res.Direction)
	require.Equal(t, signal.ProvenanceInferred, res.DirProvenance)
	require.True(t, res.Entry.Equal(mustDec(t, "45000")))
	require.Equal(t, signal.ProvenanceExplicit, res.EntryProvenance)
}

func TestExtractLocalizedVocabulary(t *testing.T) {
	e := New(testOptions())

	res, ok := e.Extract("compra BTC entrada 45000 objetivo 48000")
	require.True(t, ok)

	require.Equal(t, "BTC", res.Asset)
	require.Equal(t, signal.DirectionLong, res.Direction)
	require.Equal(t, signal.ProvenanceInferred, res.DirProvenance)
	require.True(t, res.Entry.Equal(mustDec(t, "45000")))
	require.True(t, res.Target.Equal(mustDec(t, "48000")))
}

func TestExtractExplicitDirectionBeatsSentiment(t *testing.T) {
	e := New(testOptions())

	// "bearish" appears first in the text, but the explicit verb wins.
	res, ok := e.Extract("bearish chop lately but BTC long entry 45000")
	require.True(t, ok)
	require.Equal(t, signal.DirectionLong, res.Direction)
	require.Equal(t, signal.ProvenanceExplicit, res.DirProvenance)
}

func TestExtractEntryRangeMidpoint(t *testing.T) {
	e := New(testOptions())

	res, ok := e.Extract("BTC long entry 45000 - 47000 tp 50000")
	require.True(t, ok)
	require.True(t, res.Entry.Equal(mustDec(t, "46000")), "got %s", res.Entry)
	require.Equal(t, signal.ProvenanceExplicit, res.EntryProvenance)
	require.True(t, res.Target.Equal(mustDec(t, "50000")))
}

func TestExtractEntryRangeLowerBound(t *testing.T) {
	opts := testOptions()
	opts.RangeEntryMidpoint = false
	e := New(opts)

	res, ok := e.Extract("BTC long entry 45000 - 47000")
	require.True(t, ok)
	require.True(t, res.Entry.Equal(mustDec(t, "45000")))
}

func TestExtractPositionalOrderAndDuplicates(t *testing.T) {
	e := New(testOptions())

	res, ok := e.Extract("SOL buy 150 150 180 140")
	require.True(t, ok)

	require.True(t, res.Entry.Equal(mustDec(t, "150")))
	require.Equal(t, signal.ProvenancePositional, res.EntryProvenance)
	require.True(t, res.Target.Equal(mustDec(t, "180")))
	require.True(t, res.Stop.Equal(mustDec(t, "140")))
}

func TestExtractNumbersBeforeAssetIgnored(t *testing.T) {
	e := New(testOptions())

	res, ok := e.Extract("posted at 10:30 BTC long 45000")
	require.True(t, ok)
	require.True(t, res.Entry.Equal(mustDec(t, "45000")), "got %s", res.Entry)
}

func TestExtractNoEntryFound(t *testing.T) {
	e := New(testOptions())

	res, ok := e.Extract("ETH looking bullish")
	require.True(t, ok)
	require.Nil(t, res.Entry)
	require.Equal(t, signal.ProvenanceNone, res.EntryProvenance)
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"45000", "45000"},
		{"$45000", "45000"},
		{"€47000.5", "47000.5"},
		{"£1,234", "1234"},
		{"45,000.50", "45000.50"},
		{"1.234,56", "1234.56"},
		{"1.234.567", "1234567"},
		{"3,5", "3.5"},
		{"0.065", "0.065"},
	}

	for _, tc := range cases {
		got, err := parseNumber(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		require.True(t, got.Equal(mustDec(t, tc.want)), "input %q: got %s, want %s", tc.in, got, tc.want)
	}
}

func TestParseNumberRejectsGarbage(t *testing.T) {
	_, err := parseNumber("not-a-number")
	require.Error(t, err)
}
