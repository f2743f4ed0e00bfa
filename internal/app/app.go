package app

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-signal-radar/internal/alerting"
	"trade-signal-radar/internal/calibrate"
	"trade-signal-radar/internal/config"
	"trade-signal-radar/internal/extract"
	"trade-signal-radar/internal/marketdata"
	"trade-signal-radar/internal/pipeline"
	"trade-signal-radar/internal/scheduler"
	"trade-signal-radar/internal/score"
	"trade-signal-radar/internal/service"
	"trade-signal-radar/internal/storage"
	"trade-signal-radar/internal/validate"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newPipeline(stats pipeline.StatsProvider) *pipeline.Pipeline {
	extractor := extract.New(a.Config.ExtractorOptions())
	validator := validate.New(a.Config.ValidatorOptions())
	scorer := score.New(score.Options{
		SampleCap:        a.Config.Scoring.SampleCap,
		MaxHistoryWeight: a.Config.Scoring.MaxHistoryWeight,
	})
	return pipeline.New(extractor, validator, scorer, stats, a.Logger)
}

func (a *App) newEngine() *calibrate.Engine {
	return calibrate.New(calibrate.Options{
		MinSamples:    a.Config.Calibration.MinSamples,
		AnomalyFactor: decimal.NewFromFloat(a.Config.Calibration.AnomalyFactor),
	}, a.Logger)
}

func (a *App) newPriceFetcher() marketdata.ReferencePriceFetcher {
	spot := marketdata.NewSpot(marketdata.SpotOptions{
		BaseURL:    a.Config.MarketData.BaseURL,
		QuoteAsset: a.Config.MarketData.QuoteAsset,
		Timeout:    a.Config.MarketData.RequestTimeout,
		UserAgent:  a.Config.MarketData.UserAgent,
	}, a.Logger)

	if a.Config.Ethereum.RPCURL == "" || len(a.Config.Ethereum.Feeds) == 0 {
		return spot
	}

	chain := marketdata.NewChainlink(marketdata.ChainlinkOptions{
		RPCURL:  a.Config.Ethereum.RPCURL,
		Feeds:   upperKeys(a.Config.Ethereum.Feeds),
		Timeout: a.Config.Ethereum.RequestTimeout,
	}, a.Logger)

	return marketdata.NewComposite(a.Logger, spot, chain)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store) *service.Service {
	var (
		signals    storage.SignalStore
		stats      storage.StatsStore
		alertStore storage.AlertStore
		provider   pipeline.StatsProvider
	)
	if store != nil {
		signals = store
		stats = store
		alertStore = store
		provider = store
	}

	pipe := a.newPipeline(provider)
	return service.New(a.Config, pipe, a.newEngine(), a.newPriceFetcher(), signals, stats, alertStore, a.newNotifier(), a.Logger)
}

// Run executes the long-running calibration service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn must be configured to run the calibration service")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store)

	sched := scheduler.New(a.Logger)
	if err := sched.Add("calibration", a.Config.Calibration.Schedule, func(ctx context.Context) error {
		_, err := svc.Calibrate(ctx)
		return err
	}); err != nil {
		return err
	}

	a.Logger.Info().Str("schedule", a.Config.Calibration.Schedule).Msg("starting calibration service")
	err = sched.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("calibration service stopped")
	return nil
}

// Calibrate runs a single calibration pass and exits.
func (a *App) Calibrate(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot calibrate")
	}
	if closeStore != nil {
		defer closeStore()
	}

	_, err = a.newService(store).Calibrate(ctx)
	return err
}

// upperKeys restores asset symbols that viper lowercased.
func upperKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// IngestOptions hold parameters for batch ingestion.
type IngestOptions struct {
	Path   string
	Source string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting signals and accuracy history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateOptions configure a dry-run extraction.
type SimulateOptions struct {
	Text      string
	Source    string
	MessageID string
}
