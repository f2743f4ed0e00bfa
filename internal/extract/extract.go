package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"trade-signal-radar/internal/signal"
)

// Options parameterise the lexical extractor. Vocabulary is injected so
// deployments can extend aliases and keywords without code changes.
type Options struct {
	// Aliases maps lowercased tokens to canonical tickers ("bitcoin" -> "BTC").
	Aliases map[string]string
	// Direction vocabularies in priority order: explicit trading verbs win
	// over sentiment words, which win over localized equivalents.
	ExplicitDirections  map[string]signal.Direction
	SentimentDirections map[string]signal.Direction
	LocalizedDirections map[string]signal.Direction
	// Labels preceding a price for each field.
	EntryLabels  []string
	TargetLabels []string
	StopLabels   []string
	// RangeEntryMidpoint selects the midpoint of "ENTRY: X - Y" as the entry
	// price; when false the lower bound is used.
	RangeEntryMidpoint bool
}

// Result holds the best-effort fields recovered from one message.
type Result struct {
	Asset           string
	AssetProvenance signal.Provenance
	Direction       signal.Direction
	DirProvenance   signal.Provenance
	Entry           *decimal.Decimal
	Target          *decimal.Decimal
	Stop            *decimal.Decimal
	EntryProvenance signal.Provenance
}

// Extractor scans raw message text for signal fields. It is pure and safe
// for concurrent use.
type Extractor struct {
	opts       Options
	wordRe     *regexp.Regexp
	numberRe   *regexp.Regexp
	entryRange *regexp.Regexp
	entryRe    *regexp.Regexp
	targetRe   *regexp.Regexp
	stopRe     *regexp.Regexp
}

const numberPattern = `[$€£]?\d+(?:[.,]\d+)*`

// New compiles an extractor from the given vocabulary.
func New(opts Options) *Extractor {
	return &Extractor{
		opts:       opts,
		wordRe:     regexp.MustCompile(`[\p{L}]+`),
		numberRe:   regexp.MustCompile(numberPattern),
		entryRange: labelRegexp(opts.EntryLabels, numberPattern+`\s*[-–/]\s*`+numberPattern),
		entryRe:    labelRegexp(opts.EntryLabels, numberPattern),
		targetRe:   labelRegexp(opts.TargetLabels, numberPattern),
		stopRe:     labelRegexp(opts.StopLabels, numberPattern),
	}
}

func labelRegexp(labels []string, capture string) *regexp.Regexp {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(strings.ToLower(l)), `\ `, `\s+`)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:` + strings.Join(quoted, "|") + `)\s*[:=]?\s*(` + capture + `)`)
}

// Extract parses one message. The second return value is false when neither
// a known asset nor a direction could be found; callers must not build a
// record from such a miss.
func (e *Extractor) Extract(text string) (Result, bool) {
	var res Result

	assetEnd, ok := e.findAsset(text, &res)
	if !ok {
		return Result{}, false
	}
	if !e.findDirection(text, &res) {
		return Result{}, false
	}

	claimed := e.findLabeled(text, &res)
	e.fillPositional(text, assetEnd, claimed, &res)

	if res.Entry == nil {
		res.EntryProvenance = signal.ProvenanceNone
	}
	return res, true
}

// findAsset locates the first known ticker or alias. A token that equals the
// canonical ticker counts as explicit; a spelled-out alias is inferred.
func (e *Extractor) findAsset(text string, res *Result) (int, bool) {
	for _, loc := range e.wordRe.FindAllStringIndex(text, -1) {
		word := strings.ToLower(text[loc[0]:loc[1]])
		ticker, ok := e.opts.Aliases[word]
		if !ok {
			continue
		}
		res.Asset = ticker
		if strings.EqualFold(word, ticker) {
			res.AssetProvenance = signal.ProvenanceExplicit
		} else {
			res.AssetProvenance = signal.ProvenanceInferred
		}
		return loc[1], true
	}
	return 0, false
}

func (e *Extractor) findDirection(text string, res *Result) bool {
	type family struct {
		vocab map[string]signal.Direction
		prov  signal.Provenance
	}
	families := []family{
		{e.opts.ExplicitDirections, signal.ProvenanceExplicit},
		{e.opts.SentimentDirections, signal.ProvenanceInferred},
		{e.opts.LocalizedDirections, signal.ProvenanceInferred},
	}

	words := e.wordRe.FindAllString(text, -1)
	for _, f := range families {
		for _, w := range words {
			if dir, ok := f.vocab[strings.ToLower(w)]; ok {
				res.Direction = dir
				res.DirProvenance = f.prov
				return true
			}
		}
	}
	return false
}

// findLabeled captures prices adjacent to labeled keywords and returns the
// byte spans those numbers occupy, so the positional pass leaves them alone.
func (e *Extractor) findLabeled(text string, res *Result) [][2]int {
	var claimed [][2]int

	if m := e.entryRange.FindStringSubmatchIndex(text); m != nil {
		span := text[m[2]:m[3]]
		if entry, ok := e.parseRange(span); ok {
			res.Entry = &entry
			res.EntryProvenance = signal.ProvenanceExplicit
			claimed = append(claimed, [2]int{m[2], m[3]})
		}
	}

	capture := func(re *regexp.Regexp, dst **decimal.Decimal) bool {
		if *dst != nil {
			return false
		}
		m := re.FindStringSubmatchIndex(text)
		if m == nil {
			return false
		}
		d, err := parseNumber(text[m[2]:m[3]])
		if err != nil {
			return false
		}
		*dst = &d
		claimed = append(claimed, [2]int{m[2], m[3]})
		return true
	}

	if capture(e.entryRe, &res.Entry) {
		res.EntryProvenance = signal.ProvenanceExplicit
	}
	capture(e.targetRe, &res.Target)
	capture(e.stopRe, &res.Stop)

	return claimed
}

// fillPositional assigns leftover numbers after the asset mention to the
// still-missing fields in entry, target, stop order. This is a deliberate
// simplifying heuristic; provenance marks the fields it touched.
func (e *Extractor) fillPositional(text string, assetEnd int, claimed [][2]int, res *Result) {
	assigned := make([]decimal.Decimal, 0, 3)
	record := func(d decimal.Decimal) {
		assigned = append(assigned, d)
	}
	if res.Entry != nil {
		record(*res.Entry)
	}
	if res.Target != nil {
		record(*res.Target)
	}
	if res.Stop != nil {
		record(*res.Stop)
	}

	for _, loc := range e.numberRe.FindAllStringIndex(text, -1) {
		if loc[0] < assetEnd || overlaps(loc, claimed) {
			continue
		}
		d, err := parseNumber(text[loc[0]:loc[1]])
		if err != nil || isDuplicate(d, assigned) {
			continue
		}

		switch {
		case res.Entry == nil:
			res.Entry = &d
			res.EntryProvenance = signal.ProvenancePositional
		case res.Target == nil:
			res.Target = &d
		case res.Stop == nil:
			res.Stop = &d
		default:
			return
		}
		record(d)
	}
}

func (e *Extractor) parseRange(span string) (decimal.Decimal, bool) {
	bounds := e.numberRe.FindAllString(span, 2)
	if len(bounds) != 2 {
		return decimal.Decimal{}, false
	}
	low, err := parseNumber(bounds[0])
	if err != nil {
		return decimal.Decimal{}, false
	}
	high, err := parseNumber(bounds[1])
	if err != nil {
		return decimal.Decimal{}, false
	}
	if !e.opts.RangeEntryMidpoint {
		return low, true
	}
	return low.Add(high).Div(decimal.NewFromInt(2)), true
}

func overlaps(loc []int, claimed [][2]int) bool {
	for _, c := range claimed {
		if loc[0] < c[1] && loc[1] > c[0] {
			return true
		}
	}
	return false
}

func isDuplicate(d decimal.Decimal, seen []decimal.Decimal) bool {
	for _, s := range seen {
		if s.Equal(d) {
			return true
		}
	}
	return false
}

var (
	thousandsCommas = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)
	thousandsDots   = regexp.MustCompile(`^\d{1,3}(\.\d{3}){2,}$`)
)

// parseNumber normalises a numeric token, tolerating currency symbols and
// thousands separators in both comma and dot conventions.
func parseNumber(tok string) (decimal.Decimal, error) {
	tok = strings.TrimSpace(tok)
	tok = strings.TrimLeft(tok, "$€£ ")

	hasComma := strings.Contains(tok, ",")
	hasDot := strings.Contains(tok, ".")

	switch {
	case hasComma && hasDot:
		// The rightmost separator is the decimal point.
		if strings.LastIndex(tok, ",") > strings.LastIndex(tok, ".") {
			tok = strings.ReplaceAll(tok, ".", "")
			tok = strings.Replace(tok, ",", ".", 1)
		} else {
			tok = strings.ReplaceAll(tok, ",", "")
		}
	case hasComma:
		if thousandsCommas.MatchString(tok) {
			tok = strings.ReplaceAll(tok, ",", "")
		} else {
			tok = strings.Replace(tok, ",", ".", 1)
		}
	case hasDot:
		if thousandsDots.MatchString(tok) {
			tok = strings.ReplaceAll(tok, ".", "")
		}
	}

	return decimal.NewFromString(tok)
}
