package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trade-signal-radar/internal/extract"
	"trade-signal-radar/internal/score"
	"trade-signal-radar/internal/signal"
	"trade-signal-radar/internal/validate"
)

// ErrNoSignal reports that a message contained no recognizable asset or
// direction. It is a normal outcome, not a failure; callers skip the message.
var ErrNoSignal = errors.New("pipeline: no recognizable signal in message")

// IncomingMessage is one raw message handed to the pipeline by whatever
// transport feeds it.
type IncomingMessage struct {
	Source    string     `json:"source"`
	MessageID string     `json:"message_id"`
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// StatsProvider looks up the trust profile recorded for a source. A nil
// result means no history is known yet.
type StatsProvider interface {
	GetSourceStats(ctx context.Context, source string) (*signal.SourceStats, error)
}

// Pipeline runs extraction, validation, scoring, and record assembly for
// individual messages. It holds no mutable state and is safe to share.
type Pipeline struct {
	extractor *extract.Extractor
	validator *validate.Validator
	scorer    *score.Scorer
	stats     StatsProvider
	logger    zerolog.Logger
	clock     func() time.Time
}

// New wires the pipeline stages together. stats may be nil when no history
// store is available; scoring then runs without the source blend.
func New(extractor *extract.Extractor, validator *validate.Validator, scorer *score.Scorer, stats StatsProvider, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		validator: validator,
		scorer:    scorer,
		stats:     stats,
		logger:    logger.With().Str("component", "pipeline").Logger(),
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Extract turns one raw message into a canonical Signal. ErrNoSignal is
// returned for messages with no detectable asset or direction; any other
// error indicates a stats lookup problem, which degrades to an unblended
// score rather than failing the message.
func (p *Pipeline) Extract(ctx context.Context, msg IncomingMessage) (signal.Signal, error) {
	res, ok := p.extractor.Extract(msg.Text)
	if !ok {
		p.logger.Debug().Str("source", msg.Source).Str("message_id", msg.MessageID).Msg("no signal in message")
		return signal.Signal{}, ErrNoSignal
	}

	verdict := p.validator.Check(res.Asset, res.Entry, res.Target, res.Stop)

	var stats *signal.SourceStats
	if p.stats != nil {
		found, err := p.stats.GetSourceStats(ctx, msg.Source)
		if err != nil {
			p.logger.Warn().Err(err).Str("source", msg.Source).Msg("source stats unavailable; scoring without history")
		} else {
			stats = found
		}
	}

	confidence := p.scorer.Score(score.Inputs{
		Tier:            verdict.Tier,
		AssetProvenance: res.AssetProvenance,
		DirProvenance:   res.DirProvenance,
		EntryProvenance: res.EntryProvenance,
		Stats:           stats,
	})

	now := p.clock()
	msgTS := now
	if msg.Timestamp != nil {
		msgTS = msg.Timestamp.UTC()
	}

	return signal.Signal{
		ID:               signal.ID(res.Asset, msg.MessageID),
		Source:           msg.Source,
		MessageID:        msg.MessageID,
		Asset:            res.Asset,
		Direction:        res.Direction,
		EntryPrice:       res.Entry,
		TargetPrice:      res.Target,
		StopLoss:         res.Stop,
		RawText:          msg.Text,
		ExtractedAt:      now,
		MessageTimestamp: msgTS,
		Confidence:       confidence,
		QualityTier:      verdict.Tier,
		IsValid:          verdict.IsValid,
		AssetProvenance:  res.AssetProvenance,
		DirProvenance:    res.DirProvenance,
		EntryProvenance:  res.EntryProvenance,
	}, nil
}

// BatchResult summarises a fan-out run.
type BatchResult struct {
	Signals []signal.Signal
	Misses  int
}

// ExtractBatch processes messages concurrently. Extraction is stateless, so
// the only coordination is collecting outputs; order follows the input.
func (p *Pipeline) ExtractBatch(ctx context.Context, msgs []IncomingMessage, workers int) (BatchResult, error) {
	if workers <= 0 {
		workers = 4
	}

	out := make([]*signal.Signal, len(msgs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, msg := range msgs {
		g.Go(func() error {
			sig, err := p.Extract(ctx, msg)
			if errors.Is(err, ErrNoSignal) {
				return nil
			}
			if err != nil {
				return err
			}
			out[i] = &sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{Signals: make([]signal.Signal, 0, len(msgs))}
	for _, sig := range out {
		if sig == nil {
			res.Misses++
			continue
		}
		res.Signals = append(res.Signals, *sig)
	}
	return res, nil
}
