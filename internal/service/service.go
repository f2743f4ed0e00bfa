package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-signal-radar/internal/alerting"
	"trade-signal-radar/internal/calibrate"
	"trade-signal-radar/internal/config"
	"trade-signal-radar/internal/marketdata"
	"trade-signal-radar/internal/pipeline"
	"trade-signal-radar/internal/signal"
	"trade-signal-radar/internal/storage"
)

// Service orchestrates ingestion, persistence, calibration, and alerting.
type Service struct {
	pipeline   *pipeline.Pipeline
	engine     *calibrate.Engine
	prices     marketdata.ReferencePriceFetcher
	signals    storage.SignalStore
	stats      storage.StatsStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	logger     zerolog.Logger

	locker        storage.AdvisoryLocker
	lockKey       int64
	accuracyFloor decimal.Decimal
	alertsOn      bool
	workers       int
}

// New constructs the service. Store interfaces may be nil in dry-run setups;
// affected operations then degrade or error out explicitly.
func New(cfg *config.Config, pipe *pipeline.Pipeline, engine *calibrate.Engine, prices marketdata.ReferencePriceFetcher, signals storage.SignalStore, stats storage.StatsStore, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := signals.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		pipeline:      pipe,
		engine:        engine,
		prices:        prices,
		signals:       signals,
		stats:         stats,
		alertStore:    alertStore,
		notifier:      notifier,
		logger:        logger.With().Str("component", "service").Logger(),
		locker:        locker,
		lockKey:       cfg.Calibration.AdvisoryLockKey,
		accuracyFloor: decimal.NewFromFloat(cfg.Alerting.AccuracyFloorPct),
		alertsOn:      cfg.Alerting.Enabled,
		workers:       cfg.Ingest.Workers,
	}
}

// Ingest processes one raw message end to end. The boolean reports whether a
// signal was actually recorded; a miss is a normal, silent outcome.
func (s *Service) Ingest(ctx context.Context, msg pipeline.IncomingMessage) (signal.Signal, bool, error) {
	sig, err := s.pipeline.Extract(ctx, msg)
	if errors.Is(err, pipeline.ErrNoSignal) {
		return signal.Signal{}, false, nil
	}
	if err != nil {
		return signal.Signal{}, false, err
	}

	if s.signals != nil {
		if err := s.signals.UpsertSignal(ctx, sig); err != nil {
			return signal.Signal{}, false, fmt.Errorf("persist signal: %w", err)
		}
	}

	s.logger.Info().
		Str("id", sig.ID).
		Str("source", sig.Source).
		Str("asset", sig.Asset).
		Str("direction", string(sig.Direction)).
		Str("tier", string(sig.QualityTier)).
		Str("confidence", sig.Confidence.StringFixed(1)).
		Msg("signal recorded")
	return sig, true, nil
}

// IngestBatch fans extraction out over the worker pool and upserts the
// results. Returns the number of stored signals and skipped misses.
func (s *Service) IngestBatch(ctx context.Context, msgs []pipeline.IncomingMessage) (int, int, error) {
	batch, err := s.pipeline.ExtractBatch(ctx, msgs, s.workers)
	if err != nil {
		return 0, 0, err
	}

	stored := 0
	for i := range batch.Signals {
		if err := ctx.Err(); err != nil {
			return stored, batch.Misses, err
		}
		if s.signals == nil {
			continue
		}
		if err := s.signals.UpsertSignal(ctx, batch.Signals[i]); err != nil {
			s.logger.Error().Err(err).Str("id", batch.Signals[i].ID).Msg("failed to upsert signal")
			continue
		}
		stored++
	}

	s.logger.Info().Int("messages", len(msgs)).Int("stored", stored).Int("misses", batch.Misses).Msg("batch ingest completed")
	return stored, batch.Misses, nil
}

// Calibrate runs one full calibration pass: snapshot the population, derive
// the update-set, write it back. Each stats row and each signal flag is
// committed independently, so interruption leaves a consistent prefix.
func (s *Service) Calibrate(ctx context.Context) (calibrate.Result, error) {
	if s.signals == nil || s.stats == nil {
		return calibrate.Result{}, errors.New("calibration requires a configured database")
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return calibrate.Result{}, err
	}
	if !proceed {
		s.logger.Debug().Msg("skip calibration because advisory lock held elsewhere")
		return calibrate.Result{}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	snapshot, err := s.signals.ListSignals(ctx)
	if err != nil {
		return calibrate.Result{}, fmt.Errorf("read signal population: %w", err)
	}

	var fetch calibrate.FetchFunc
	if s.prices != nil {
		fetch = s.prices.FetchPrices
	}

	res, err := s.engine.Recalibrate(ctx, snapshot, fetch)
	if err != nil {
		return calibrate.Result{}, err
	}

	for _, stats := range res.Stats {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.stats.UpsertSourceStats(ctx, stats); err != nil {
			s.logger.Error().Err(err).Str("source", stats.Source).Msg("failed to persist source stats")
			continue
		}
		if err := s.stats.AppendAccuracyPoint(ctx, storage.AccuracyPoint{
			Source:          stats.Source,
			SampleCount:     stats.SampleCount,
			AccuracyPercent: stats.AccuracyPercent,
			RecordedAt:      stats.LastRecomputed,
		}); err != nil {
			s.logger.Error().Err(err).Str("source", stats.Source).Msg("failed to append accuracy history")
		}
	}

	for _, sig := range res.Updated {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.signals.UpdateSignalValidity(ctx, sig.ID, sig.IsValid, sig.QualityTier); err != nil {
			s.logger.Error().Err(err).Str("id", sig.ID).Msg("failed to update signal validity")
		}
	}

	s.logger.Info().
		Int("population", len(snapshot)).
		Int("sources_recomputed", len(res.Stats)).
		Int("anomalies_flagged", len(res.Updated)).
		Msg("calibration pass completed")

	s.emitAlerts(ctx, res)
	return res, nil
}

func (s *Service) emitAlerts(ctx context.Context, res calibrate.Result) {
	if !s.alertsOn || s.notifier == nil {
		return
	}

	for _, stats := range res.Stats {
		if stats.AccuracyPercent.GreaterThanOrEqual(s.accuracyFloor) {
			continue
		}
		note := alerting.Notification{
			RunTS:        stats.LastRecomputed,
			Source:       stats.Source,
			Kind:         alerting.KindLowAccuracy,
			AccuracyPct:  stats.AccuracyPercent,
			ThresholdPct: s.accuracyFloor,
			SampleCount:  stats.SampleCount,
		}
		s.recordAlert(ctx, note)
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("source", stats.Source).Msg("failed to dispatch accuracy alert")
		}
	}

	if len(res.Updated) > 0 {
		note := alerting.Notification{
			RunTS:        time.Now().UTC(),
			Kind:         alerting.KindAnomalies,
			AnomalyCount: len(res.Updated),
		}
		s.recordAlert(ctx, note)
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Msg("failed to dispatch anomaly alert")
		}
	}
}

func (s *Service) recordAlert(ctx context.Context, note alerting.Notification) {
	if s.alertStore == nil {
		return
	}
	record := storage.AlertRecord{
		RunTS:  note.RunTS,
		Source: note.Source,
		Kind:   note.Kind,
		Detail: fmt.Sprintf("accuracy=%s threshold=%s samples=%d anomalies=%d",
			note.AccuracyPct.StringFixed(1), note.ThresholdPct.StringFixed(1), note.SampleCount, note.AnomalyCount),
	}
	if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("kind", note.Kind).Msg("failed to persist alert record")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
