package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"trade-signal-radar/internal/signal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertSignalSQL = `INSERT INTO signals (
        id,
        source,
        message_id,
        asset,
        direction,
        entry_price,
        target_price,
        stop_loss,
        raw_text,
        extracted_at,
        message_ts,
        confidence,
        quality_tier,
        is_valid,
        asset_provenance,
        direction_provenance,
        entry_provenance
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
    )
    ON CONFLICT (id) DO UPDATE
    SET
        source               = EXCLUDED.source,
        message_id           = EXCLUDED.message_id,
        asset                = EXCLUDED.asset,
        direction            = EXCLUDED.direction,
        entry_price          = EXCLUDED.entry_price,
        target_price         = EXCLUDED.target_price,
        stop_loss            = EXCLUDED.stop_loss,
        raw_text             = EXCLUDED.raw_text,
        extracted_at         = EXCLUDED.extracted_at,
        message_ts           = EXCLUDED.message_ts,
        confidence           = EXCLUDED.confidence,
        quality_tier         = EXCLUDED.quality_tier,
        is_valid             = EXCLUDED.is_valid,
        asset_provenance     = EXCLUDED.asset_provenance,
        direction_provenance = EXCLUDED.direction_provenance,
        entry_provenance     = EXCLUDED.entry_provenance;`

	signalColumns = `id, source, message_id, asset, direction,
        entry_price, target_price, stop_loss, raw_text,
        extracted_at, message_ts, confidence, quality_tier, is_valid,
        asset_provenance, direction_provenance, entry_provenance`

	listSignalsSQL = `SELECT ` + signalColumns + `
    FROM signals
    ORDER BY extracted_at;`

	listRecentSignalsSQL = `SELECT ` + signalColumns + `
    FROM signals
    ORDER BY extracted_at DESC
    LIMIT $1;`

	listSignalsBySourceSQL = `SELECT ` + signalColumns + `
    FROM signals
    WHERE source = $1
    ORDER BY extracted_at;`

	updateSignalValiditySQL = `UPDATE signals
    SET is_valid = $2, quality_tier = $3
    WHERE id = $1;`

	countSignalsSQL = `SELECT COUNT(*) FROM signals;`

	upsertSourceStatsSQL = `INSERT INTO source_stats (
        source,
        sample_count,
        accuracy_percent,
        last_recomputed_at
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (source) DO UPDATE
    SET sample_count       = EXCLUDED.sample_count,
        accuracy_percent   = EXCLUDED.accuracy_percent,
        last_recomputed_at = EXCLUDED.last_recomputed_at;`

	getSourceStatsSQL = `SELECT source, sample_count, accuracy_percent, last_recomputed_at
    FROM source_stats
    WHERE source = $1;`

	listSourceStatsSQL = `SELECT source, sample_count, accuracy_percent, last_recomputed_at
    FROM source_stats
    ORDER BY source;`

	insertAccuracyPointSQL = `INSERT INTO source_accuracy_history (
        source,
        sample_count,
        accuracy_percent,
        recorded_at
    ) VALUES ($1,$2,$3,$4);`

	listAccuracyHistorySQL = `SELECT source, sample_count, accuracy_percent, recorded_at
    FROM source_accuracy_history
    WHERE recorded_at >= $1
      AND recorded_at < $2
    ORDER BY recorded_at;`

	insertAlertSQL = `INSERT INTO alerts (
        run_ts,
        source,
        kind,
        detail
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (run_ts, source, kind) DO UPDATE
    SET detail = EXCLUDED.detail
    RETURNING id, run_ts, source, kind, detail, created_at;`

	listRecentAlertsSQL = `SELECT id, run_ts, source, kind, detail, created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// SignalStore defines the upsert/query surface the pipeline and the
// calibration engine rely on.
type SignalStore interface {
	UpsertSignal(ctx context.Context, sig signal.Signal) error
	ListSignals(ctx context.Context) ([]signal.Signal, error)
	ListRecentSignals(ctx context.Context, limit int) ([]signal.Signal, error)
	ListSignalsBySource(ctx context.Context, source string) ([]signal.Signal, error)
	UpdateSignalValidity(ctx context.Context, id string, isValid bool, tier signal.QualityTier) error
	CountSignals(ctx context.Context) (int64, error)
}

// StatsStore persists per-source trust profiles and their history.
type StatsStore interface {
	UpsertSourceStats(ctx context.Context, stats signal.SourceStats) error
	GetSourceStats(ctx context.Context, source string) (*signal.SourceStats, error)
	ListSourceStats(ctx context.Context) ([]signal.SourceStats, error)
	AppendAccuracyPoint(ctx context.Context, point AccuracyPoint) error
	ListAccuracyHistory(ctx context.Context, from, to time.Time) ([]AccuracyPoint, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to signals, source stats, and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertSignal persists or overwrites a signal keyed by its deterministic id.
func (s *Store) UpsertSignal(ctx context.Context, sig signal.Signal) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertSignalSQL,
		sig.ID,
		sig.Source,
		sig.MessageID,
		sig.Asset,
		string(sig.Direction),
		nullableDecimal(sig.EntryPrice),
		nullableDecimal(sig.TargetPrice),
		nullableDecimal(sig.StopLoss),
		sig.RawText,
		sig.ExtractedAt,
		sig.MessageTimestamp,
		sig.Confidence.String(),
		string(sig.QualityTier),
		sig.IsValid,
		string(sig.AssetProvenance),
		string(sig.DirProvenance),
		string(sig.EntryProvenance),
	)
	if execErr != nil {
		return fmt.Errorf("upsert signal: %w", execErr)
	}
	return nil
}

// ListSignals returns the whole persisted population in extraction order.
func (s *Store) ListSignals(ctx context.Context) ([]signal.Signal, error) {
	return s.querySignals(ctx, listSignalsSQL)
}

// ListRecentSignals lists the most recent signals ordered by descending extraction time.
func (s *Store) ListRecentSignals(ctx context.Context, limit int) ([]signal.Signal, error) {
	return s.querySignals(ctx, listRecentSignalsSQL, limit)
}

// ListSignalsBySource returns all signals of one source.
func (s *Store) ListSignalsBySource(ctx context.Context, source string) ([]signal.Signal, error) {
	return s.querySignals(ctx, listSignalsBySourceSQL, source)
}

func (s *Store) querySignals(ctx context.Context, query string, args ...any) ([]signal.Signal, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("query signals: %w", queryErr)
	}
	defer rows.Close()

	signals := make([]signal.Signal, 0)
	for rows.Next() {
		sig, scanErr := scanSignal(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		signals = append(signals, sig)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return signals, nil
}

// UpdateSignalValidity revokes or restores a signal's validity flags without
// touching the rest of the record.
func (s *Store) UpdateSignalValidity(ctx context.Context, id string, isValid bool, tier signal.QualityTier) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, updateSignalValiditySQL, id, isValid, string(tier))
	if execErr != nil {
		return fmt.Errorf("update signal validity: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CountSignals counts stored signals.
func (s *Store) CountSignals(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSignalsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count signals: %w", scanErr)
	}
	return count, nil
}

// UpsertSourceStats persists a recomputed trust profile.
func (s *Store) UpsertSourceStats(ctx context.Context, stats signal.SourceStats) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertSourceStatsSQL,
		stats.Source,
		stats.SampleCount,
		stats.AccuracyPercent.String(),
		stats.LastRecomputed,
	)
	if execErr != nil {
		return fmt.Errorf("upsert source stats: %w", execErr)
	}
	return nil
}

// GetSourceStats fetches the trust profile for one source; nil when the
// source has no recorded history yet.
func (s *Store) GetSourceStats(ctx context.Context, source string) (*signal.SourceStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var (
		stats       signal.SourceStats
		accuracyStr string
	)
	scanErr := pool.QueryRow(ctx, getSourceStatsSQL, source).Scan(
		&stats.Source,
		&stats.SampleCount,
		&accuracyStr,
		&stats.LastRecomputed,
	)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return nil, nil
	}
	if scanErr != nil {
		return nil, fmt.Errorf("get source stats: %w", scanErr)
	}

	stats.AccuracyPercent, err = decimal.NewFromString(accuracyStr)
	if err != nil {
		return nil, fmt.Errorf("parse accuracy percent: %w", err)
	}
	return &stats, nil
}

// ListSourceStats returns every recorded trust profile.
func (s *Store) ListSourceStats(ctx context.Context) ([]signal.SourceStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSourceStatsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list source stats: %w", queryErr)
	}
	defer rows.Close()

	all := make([]signal.SourceStats, 0)
	for rows.Next() {
		var (
			stats       signal.SourceStats
			accuracyStr string
		)
		if err := rows.Scan(&stats.Source, &stats.SampleCount, &accuracyStr, &stats.LastRecomputed); err != nil {
			return nil, err
		}
		stats.AccuracyPercent, err = decimal.NewFromString(accuracyStr)
		if err != nil {
			return nil, fmt.Errorf("parse accuracy percent: %w", err)
		}
		all = append(all, stats)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return all, nil
}

// AppendAccuracyPoint records one historical accuracy observation.
func (s *Store) AppendAccuracyPoint(ctx context.Context, point AccuracyPoint) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, insertAccuracyPointSQL,
		point.Source,
		point.SampleCount,
		point.AccuracyPercent.String(),
		point.RecordedAt,
	)
	if execErr != nil {
		return fmt.Errorf("append accuracy point: %w", execErr)
	}
	return nil
}

// ListAccuracyHistory lists accuracy observations within a time window.
func (s *Store) ListAccuracyHistory(ctx context.Context, from, to time.Time) ([]AccuracyPoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAccuracyHistorySQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list accuracy history: %w", queryErr)
	}
	defer rows.Close()

	points := make([]AccuracyPoint, 0)
	for rows.Next() {
		var (
			point       AccuracyPoint
			accuracyStr string
		)
		if err := rows.Scan(&point.Source, &point.SampleCount, &accuracyStr, &point.RecordedAt); err != nil {
			return nil, err
		}
		var convErr error
		point.AccuracyPercent, convErr = decimal.NewFromString(accuracyStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse accuracy percent: %w", convErr)
		}
		points = append(points, point)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

// InsertAlert persists an alert emission, overwriting the detail when the
// same run re-fires the same alert.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.RunTS,
		alert.Source,
		alert.Kind,
		alert.Detail,
	)

	var rec AlertRecord
	if scanErr := row.Scan(
		&rec.ID,
		&rec.RunTS,
		&rec.Source,
		&rec.Kind,
		&rec.Detail,
		&rec.CreatedAt,
	); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(&rec.ID, &rec.RunTS, &rec.Source, &rec.Kind, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func nullableDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanSignal(rows pgx.Rows) (signal.Signal, error) {
	var (
		sig           signal.Signal
		direction     string
		entryStr      sql.NullString
		targetStr     sql.NullString
		stopStr       sql.NullString
		confidenceStr string
		tier          string
		assetProv     string
		dirProv       string
		entryProv     string
	)

	if err := rows.Scan(
		&sig.ID,
		&sig.Source,
		&sig.MessageID,
		&sig.Asset,
		&direction,
		&entryStr,
		&targetStr,
		&stopStr,
		&sig.RawText,
		&sig.ExtractedAt,
		&sig.MessageTimestamp,
		&confidenceStr,
		&tier,
		&sig.IsValid,
		&assetProv,
		&dirProv,
		&entryProv,
	); err != nil {
		return signal.Signal{}, err
	}

	sig.Direction = signal.Direction(direction)
	sig.QualityTier = signal.QualityTier(tier)
	sig.AssetProvenance = signal.Provenance(assetProv)
	sig.DirProvenance = signal.Provenance(dirProv)
	sig.EntryProvenance = signal.Provenance(entryProv)

	var err error
	sig.Confidence, err = decimal.NewFromString(confidenceStr)
	if err != nil {
		return signal.Signal{}, fmt.Errorf("parse confidence: %w", err)
	}

	if sig.EntryPrice, err = parseNullableDecimal(entryStr); err != nil {
		return signal.Signal{}, fmt.Errorf("parse entry price: %w", err)
	}
	if sig.TargetPrice, err = parseNullableDecimal(targetStr); err != nil {
		return signal.Signal{}, fmt.Errorf("parse target price: %w", err)
	}
	if sig.StopLoss, err = parseNullableDecimal(stopStr); err != nil {
		return signal.Signal{}, fmt.Errorf("parse stop loss: %w", err)
	}

	return sig, nil
}

func parseNullableDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
