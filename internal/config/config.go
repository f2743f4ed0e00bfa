package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"trade-signal-radar/internal/extract"
	"trade-signal-radar/internal/logging"
	"trade-signal-radar/internal/signal"
	"trade-signal-radar/internal/validate"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Extraction  ExtractionConfig  `mapstructure:"extraction"`
	Validation  ValidationConfig  `mapstructure:"validation"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	MarketData  MarketDataConfig  `mapstructure:"marketdata"`
	Ethereum    EthereumConfig    `mapstructure:"ethereum"`
	Ingest      IngestConfig      `mapstructure:"ingest"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ExtractionConfig tunes the lexical extractor. Empty collections fall back
// to the built-in vocabulary; supplied ones extend it.
type ExtractionConfig struct {
	Aliases            map[string]string `mapstructure:"aliases"`
	EntryLabels        []string          `mapstructure:"entry_labels"`
	TargetLabels       []string          `mapstructure:"target_labels"`
	StopLabels         []string          `mapstructure:"stop_labels"`
	RangeEntryMidpoint bool              `mapstructure:"range_entry_midpoint"`
}

// RangeConfig bounds plausible entry prices for one asset.
type RangeConfig struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// ValidationConfig holds the per-asset plausibility table.
type ValidationConfig struct {
	Ranges     map[string]RangeConfig `mapstructure:"ranges"`
	DefaultMin float64                `mapstructure:"default_min"`
	DefaultMax float64                `mapstructure:"default_max"`
}

// ScoringConfig tunes the confidence blend.
type ScoringConfig struct {
	SampleCap        int     `mapstructure:"sample_cap"`
	MaxHistoryWeight float64 `mapstructure:"max_history_weight"`
}

// CalibrationConfig governs the periodic recalibration job.
type CalibrationConfig struct {
	Schedule        string  `mapstructure:"schedule"`
	MinSamples      int     `mapstructure:"min_samples"`
	AnomalyFactor   float64 `mapstructure:"anomaly_factor"`
	AdvisoryLockKey int64   `mapstructure:"advisory_lock_key"`
}

// MarketDataConfig captures the exchange REST endpoint used for reference prices.
type MarketDataConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	QuoteAsset     string        `mapstructure:"quote_asset"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// EthereumConfig covers on-chain reference price feeds.
type EthereumConfig struct {
	RPCURL         string            `mapstructure:"rpc_url"`
	Feeds          map[string]string `mapstructure:"feeds"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// IngestConfig tunes batch ingestion.
type IngestConfig struct {
	Workers int `mapstructure:"workers"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	AccuracyFloorPct float64        `mapstructure:"accuracy_floor_pct"`
	Telegram         TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SIGNALRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "signalradar")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("extraction.range_entry_midpoint", false)

	v.SetDefault("validation.default_min", 0.01)
	v.SetDefault("validation.default_max", 1000000.0)

	v.SetDefault("scoring.sample_cap", 50)
	v.SetDefault("scoring.max_history_weight", 0.5)

	v.SetDefault("calibration.schedule", "0 0 */6 * * *")
	v.SetDefault("calibration.min_samples", 10)
	v.SetDefault("calibration.anomaly_factor", 3.0)
	v.SetDefault("calibration.advisory_lock_key", int64(0x5247_5744))

	v.SetDefault("marketdata.base_url", "https://api.binance.com")
	v.SetDefault("marketdata.quote_asset", "USDT")
	v.SetDefault("marketdata.request_timeout", "10s")
	v.SetDefault("marketdata.user_agent", "signalradar/1.0")

	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("ingest.workers", 4)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.accuracy_floor_pct", 40.0)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Calibration.MinSamples <= 0 {
		return fmt.Errorf("calibration.min_samples must be greater than zero")
	}
	if c.Calibration.AnomalyFactor <= 1 {
		return fmt.Errorf("calibration.anomaly_factor must be greater than one")
	}
	if c.Scoring.SampleCap <= 0 {
		return fmt.Errorf("scoring.sample_cap must be greater than zero")
	}
	if c.Scoring.MaxHistoryWeight <= 0 || c.Scoring.MaxHistoryWeight > 1 {
		return fmt.Errorf("scoring.max_history_weight must be in (0,1]")
	}
	if c.Validation.DefaultMin <= 0 || c.Validation.DefaultMax <= c.Validation.DefaultMin {
		return fmt.Errorf("validation default range is malformed")
	}
	for asset, r := range c.Validation.Ranges {
		if r.Min <= 0 || r.Max <= r.Min {
			return fmt.Errorf("validation.ranges.%s is malformed", asset)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ExtractorOptions merges the built-in vocabulary with any configured
// extensions into the options the extractor is constructed from.
func (c *Config) ExtractorOptions() extract.Options {
	opts := defaultVocabulary()
	opts.RangeEntryMidpoint = c.Extraction.RangeEntryMidpoint

	for alias, ticker := range c.Extraction.Aliases {
		opts.Aliases[strings.ToLower(alias)] = strings.ToUpper(ticker)
	}
	opts.EntryLabels = append(opts.EntryLabels, c.Extraction.EntryLabels...)
	opts.TargetLabels = append(opts.TargetLabels, c.Extraction.TargetLabels...)
	opts.StopLabels = append(opts.StopLabels, c.Extraction.StopLabels...)

	return opts
}

// ValidatorOptions materialises the per-asset range table. Viper lowercases
// map keys, so asset symbols are restored to upper case here.
func (c *Config) ValidatorOptions() validate.Options {
	ranges := make(map[string]validate.PriceRange, len(c.Validation.Ranges)+len(defaultRanges))
	for asset, r := range defaultRanges {
		ranges[asset] = r
	}
	for asset, r := range c.Validation.Ranges {
		ranges[strings.ToUpper(asset)] = validate.PriceRange{
			Min: decimal.NewFromFloat(r.Min),
			Max: decimal.NewFromFloat(r.Max),
		}
	}
	return validate.Options{
		Ranges: ranges,
		Default: validate.PriceRange{
			Min: decimal.NewFromFloat(c.Validation.DefaultMin),
			Max: decimal.NewFromFloat(c.Validation.DefaultMax),
		},
	}
}

// defaultRanges are starting-point bounds for the most commonly signalled
// assets. Deployments override them as markets drift.
var defaultRanges = map[string]validate.PriceRange{
	"BTC": {Min: decimal.NewFromInt(10000), Max: decimal.NewFromInt(200000)},
	"ETH": {Min: decimal.NewFromInt(1000), Max: decimal.NewFromInt(10000)},
	"SOL": {Min: decimal.NewFromInt(10), Max: decimal.NewFromInt(1000)},
	"BNB": {Min: decimal.NewFromInt(100), Max: decimal.NewFromInt(2000)},
}

func defaultVocabulary() extract.Options {
	return extract.Options{
		Aliases: map[string]string{
			"btc": "BTC", "bitcoin": "BTC", "xbt": "BTC",
			"eth": "ETH", "ethereum": "ETH", "ether": "ETH",
			"sol": "SOL", "solana": "SOL",
			"bnb": "BNB",
			"xrp": "XRP", "ripple": "XRP",
			"ada": "ADA", "cardano": "ADA",
			"doge": "DOGE", "dogecoin": "DOGE",
			"link": "LINK", "chainlink": "LINK",
			"dot": "DOT", "polkadot": "DOT",
			"avax": "AVAX", "avalanche": "AVAX",
			"ltc": "LTC", "litecoin": "LTC",
			"matic": "MATIC", "polygon": "MATIC",
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
			"largo": signal.DirectionLong, "compra": signal.DirectionLong, "comprar": signal.DirectionLong,
			"corto": signal.DirectionShort, "venta": signal.DirectionShort, "vender": signal.DirectionShort,
		},
		EntryLabels:  []string{"entry", "entry zone", "entrada"},
		TargetLabels: []string{"take profit", "tp", "target", "objetivo", "tgt"},
		StopLabels:   []string{"stop loss", "stoploss", "stop-loss", "sl", "stop"},
	}
}
