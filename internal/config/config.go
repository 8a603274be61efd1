// Package config holds the run configuration. A RunConfig is built once by
// Load and handed to every component by value or pointer; nothing mutates it
// afterwards.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata/provider"
	"gopkg.in/yaml.v3"
)

// PolygonApiKeyEnv names the environment variable holding the equities API key.
const PolygonApiKeyEnv = "POLYGON_API_KEY"

type Strategy string

const (
	StrategyTrend         Strategy = "trend"
	StrategyMeanReversion Strategy = "meanReversion"
)

type TrailingMode string

const (
	TrailingBarATR   TrailingMode = "barATR"
	TrailingEntryATR TrailingMode = "entryATR"
	TrailingPercent  TrailingMode = "percent"
)

type HTFMode string

const (
	HTFOff        HTFMode = "off"
	HTFEmaUp      HTFMode = "emaUp"
	HTFRsiAbove   HTFMode = "rsiAbove"
	HTFEmaUpOrRsi HTFMode = "emaUpOrRsi"
)

type IndicatorConfig struct {
	EMAFast int `json:"emaFast" yaml:"emaFast" jsonschema:"title=Fast EMA,minimum=1,default=50" validate:"min=1"`
	EMASlow int `json:"emaSlow" yaml:"emaSlow" jsonschema:"title=Slow EMA,minimum=1,default=200" validate:"min=1,gtefield=EMAFast"`
	RSILen  int `json:"rsiLen" yaml:"rsiLen" jsonschema:"title=RSI length,minimum=1,default=14" validate:"min=1"`
	ATRLen  int `json:"atrLen" yaml:"atrLen" jsonschema:"title=ATR length,minimum=1,default=21" validate:"min=1"`
}

type TrendConfig struct {
	RSILong          float64 `json:"rsiLong" yaml:"rsiLong" jsonschema:"title=Hard RSI threshold,default=55" validate:"gte=0,lte=100"`
	RSILongSoft      float64 `json:"rsiLongSoft" yaml:"rsiLongSoft" jsonschema:"title=Soft RSI threshold,description=Passes only with fast EMA above slow EMA,default=48" validate:"gte=0,lte=100"`
	RequireEMARising bool    `json:"requireEmaRising" yaml:"requireEmaRising" jsonschema:"title=Require rising fast EMA for the soft pass,default=true"`
	EntryCushionATR  float64 `json:"entryCushionAtr" yaml:"entryCushionAtr" jsonschema:"title=Entry cushion,description=Close must clear fast EMA by this many ATR,default=0.15" validate:"min=0"`
}

type MeanReversionConfig struct {
	RSIOversold float64 `json:"rsiOversold" yaml:"rsiOversold" jsonschema:"default=40" validate:"gte=0,lte=100"`
	RSIExit     float64 `json:"rsiExit" yaml:"rsiExit" jsonschema:"default=58" validate:"gte=0,lte=100"`
}

type GuardConfig struct {
	MaxTradesPerDay      int     `json:"maxTradesPerDay" yaml:"maxTradesPerDay" jsonschema:"default=6" validate:"min=1"`
	MaxConsecutiveLosses int     `json:"maxConsecutiveLosses" yaml:"maxConsecutiveLosses" jsonschema:"default=4" validate:"min=1"`
	LossDecayPerDay      int     `json:"lossDecayPerDay" yaml:"lossDecayPerDay" jsonschema:"default=1" validate:"min=0"`
	CooldownBars         int     `json:"cooldownBars" yaml:"cooldownBars" jsonschema:"description=Bars blocked after a losing exit,default=3" validate:"min=0"`
	MinBarsBetween       int     `json:"minBarsBetween" yaml:"minBarsBetween" jsonschema:"default=2" validate:"min=0"`
	MinHoldBars          int     `json:"minHoldBars" yaml:"minHoldBars" jsonschema:"default=2" validate:"min=0"`
	DailyLossLimitPct    float64 `json:"dailyLossLimitPct" yaml:"dailyLossLimitPct" jsonschema:"default=1.5" validate:"gt=0"`
	ReentryATRAfterWin   float64 `json:"reentryAtrAfterWin" yaml:"reentryAtrAfterWin" jsonschema:"default=0.3" validate:"min=0"`
	ReentryATRAfterLoss  float64 `json:"reentryAtrAfterLoss" yaml:"reentryAtrAfterLoss" jsonschema:"default=0.6" validate:"min=0"`
	DayTimezone          string  `json:"dayTimezone" yaml:"dayTimezone" jsonschema:"description=Location of the trading day boundary,default=UTC"`
}

type SessionConfig struct {
	Timezone     string `json:"timezone" yaml:"timezone" jsonschema:"default=America/New_York"`
	Start        string `json:"start" yaml:"start" jsonschema:"description=HH:MM session open. Empty disables the window"`
	End          string `json:"end" yaml:"end" jsonschema:"description=HH:MM session close"`
	GraceMinutes int    `json:"graceMinutes" yaml:"graceMinutes" jsonschema:"default=2" validate:"min=0"`
}

type TrailingConfig struct {
	Mode          TrailingMode `json:"mode" yaml:"mode" jsonschema:"enum=barATR,enum=entryATR,enum=percent,default=barATR" validate:"oneof=barATR entryATR percent"`
	ATRMult       float64      `json:"atrMult" yaml:"atrMult" jsonschema:"default=2.2" validate:"gt=0"`
	ActivateR     float64      `json:"activateR" yaml:"activateR" jsonschema:"description=R-multiple before entryATR trailing tightens,default=1.5" validate:"min=0"`
	Percent       float64      `json:"percent" yaml:"percent" jsonschema:"default=4" validate:"gt=0,lt=100"`
	UpdateOnClose bool         `json:"updateOnClose" yaml:"updateOnClose" jsonschema:"description=Move the stop only on closed bars,default=true"`
}

type MomentumExitConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled" jsonschema:"default=true"`
	RMultiple     float64 `json:"rMultiple" yaml:"rMultiple" jsonschema:"description=Minimum open R before the exit fires,default=0.3" validate:"gt=0"`
	RequireProfit bool    `json:"requireProfit" yaml:"requireProfit" jsonschema:"default=true"`
}

type PyramidConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	MaxAdds         int     `json:"maxAdds" yaml:"maxAdds" jsonschema:"default=2" validate:"min=0"`
	DonchianLen     int     `json:"donchianLen" yaml:"donchianLen" jsonschema:"default=20" validate:"min=1"`
	BreakoutATRMult float64 `json:"breakoutAtrMult" yaml:"breakoutAtrMult" jsonschema:"default=0.25" validate:"min=0"`
	MinR            float64 `json:"minR" yaml:"minR" jsonschema:"default=1" validate:"min=0"`
	AddFraction     float64 `json:"addFraction" yaml:"addFraction" jsonschema:"description=Add size as a fraction of the initial size,default=0.5" validate:"gt=0,lte=1"`
}

type HTFConfig struct {
	Mode           HTFMode `json:"mode" yaml:"mode" jsonschema:"enum=off,enum=emaUp,enum=rsiAbove,enum=emaUpOrRsi,default=emaUp" validate:"oneof=off emaUp rsiAbove emaUpOrRsi"`
	Timeframe      string  `json:"timeframe" yaml:"timeframe" jsonschema:"default=4h" validate:"required"`
	RSIThreshold   float64 `json:"rsiThreshold" yaml:"rsiThreshold" jsonschema:"default=50" validate:"gte=0,lte=100"`
	SafetyBars     int     `json:"safetyBars" yaml:"safetyBars" jsonschema:"default=60" validate:"min=0"`
	RefreshMinutes int     `json:"refreshMinutes" yaml:"refreshMinutes" jsonschema:"default=60" validate:"min=1"`
}

type LiveConfig struct {
	PollSeconds       int    `json:"pollSeconds" yaml:"pollSeconds" jsonschema:"default=60" validate:"min=1"`
	SaveEvery         int    `json:"saveEvery" yaml:"saveEvery" jsonschema:"description=Iterations between state saves,default=3" validate:"min=1"`
	EquityEvery       int    `json:"equityEvery" yaml:"equityEvery" jsonschema:"description=Iterations between equity marks,default=6" validate:"min=1"`
	ErrorSleepSeconds int    `json:"errorSleepSeconds" yaml:"errorSleepSeconds" jsonschema:"default=30" validate:"min=0"`
	StateFile         string `json:"stateFile" yaml:"stateFile" jsonschema:"description=Snapshot path. Defaults to state.json under the instrument dir"`
}

type RetryConfig struct {
	MaxAttempts int `json:"maxAttempts" yaml:"maxAttempts" jsonschema:"default=5" validate:"min=1"`
	InitialMs   int `json:"initialMs" yaml:"initialMs" jsonschema:"default=500" validate:"min=1"`
	MaxMs       int `json:"maxMs" yaml:"maxMs" jsonschema:"default=30000" validate:"min=1,gtefield=InitialMs"`
}

type RateLimitConfig struct {
	PerSecond float64 `json:"perSecond" yaml:"perSecond" jsonschema:"description=Backend requests per second. 0 disables limiting,default=5" validate:"min=0"`
	Burst     int     `json:"burst" yaml:"burst" jsonschema:"default=5" validate:"min=0"`
}

type ParquetConfig struct {
	Path          string           `json:"path" yaml:"path" jsonschema:"description=Parquet file or glob written by the download command"`
	Venue         marketdata.Venue `json:"venue" yaml:"venue" jsonschema:"enum=crypto,enum=equities,default=crypto"`
	BaseTimeframe string           `json:"baseTimeframe" yaml:"baseTimeframe" jsonschema:"description=Interval stored in the files when it differs from the run timeframe"`
}

type BacktestConfig struct {
	LookbackBars int    `json:"lookbackBars" yaml:"lookbackBars" jsonschema:"default=1000" validate:"min=1"`
	EndTime      string `json:"endTime" yaml:"endTime" jsonschema:"format=date-time,description=RFC3339 end of the window. Empty means now"`
}

type OutputConfig struct {
	Dir string `json:"dir" yaml:"dir" jsonschema:"description=Root of the per-instrument report folders,default=reports" validate:"required"`
}

// RunConfig is every tunable of one run.
type RunConfig struct {
	Strategy        Strategy              `json:"strategy" yaml:"strategy" jsonschema:"enum=trend,enum=meanReversion,default=trend" validate:"oneof=trend meanReversion"`
	Symbol          string                `json:"symbol" yaml:"symbol" jsonschema:"default=BTCUSDT" validate:"required"`
	Timeframe       string                `json:"timeframe" yaml:"timeframe" jsonschema:"default=1h" validate:"required"`
	Backend         provider.ProviderType `json:"backend" yaml:"backend" jsonschema:"enum=crypto,enum=equities,enum=parquet,default=crypto" validate:"oneof=crypto equities parquet"`
	Parquet         ParquetConfig         `json:"parquet" yaml:"parquet"`
	InitialEquity   float64               `json:"initialEquity" yaml:"initialEquity" jsonschema:"default=20000" validate:"gt=0"`
	RiskPct         float64               `json:"riskPct" yaml:"riskPct" jsonschema:"description=Equity percent risked per trade,default=0.5" validate:"gt=0,lte=100"`
	MaxNotional     float64               `json:"maxNotional" yaml:"maxNotional" jsonschema:"description=Notional cap per position. 0 means current equity,default=15000" validate:"min=0"`
	StopATRMult     float64               `json:"stopAtrMult" yaml:"stopAtrMult" jsonschema:"default=2" validate:"gt=0"`
	SlippageBps     float64               `json:"slippageBps" yaml:"slippageBps" jsonschema:"default=2" validate:"min=0"`
	FeeRoundTripPct float64               `json:"feeRoundTripPct" yaml:"feeRoundTripPct" jsonschema:"default=0.08" validate:"min=0"`
	Indicators      IndicatorConfig       `json:"indicators" yaml:"indicators"`
	Trend           TrendConfig           `json:"trend" yaml:"trend"`
	MeanReversion   MeanReversionConfig   `json:"meanReversion" yaml:"meanReversion"`
	Guards          GuardConfig           `json:"guards" yaml:"guards"`
	Session         SessionConfig         `json:"session" yaml:"session"`
	Trailing        TrailingConfig        `json:"trailing" yaml:"trailing"`
	MomentumExit    MomentumExitConfig    `json:"momentumExit" yaml:"momentumExit"`
	Pyramid         PyramidConfig         `json:"pyramid" yaml:"pyramid"`
	HTF             HTFConfig             `json:"htf" yaml:"htf"`
	Live            LiveConfig            `json:"live" yaml:"live"`
	Retry           RetryConfig           `json:"retry" yaml:"retry"`
	RateLimit       RateLimitConfig       `json:"rateLimit" yaml:"rateLimit"`
	Backtest        BacktestConfig        `json:"backtest" yaml:"backtest"`
	Output          OutputConfig          `json:"output" yaml:"output"`
	Seed            int64                 `json:"seed" yaml:"seed" jsonschema:"description=Slippage random seed,default=42"`
}

// Default returns the documented defaults.
func Default() RunConfig {
	return RunConfig{
		Strategy:        StrategyTrend,
		Symbol:          "BTCUSDT",
		Timeframe:       "1h",
		Backend:         provider.ProviderBinance,
		Parquet:         ParquetConfig{Path: "", Venue: marketdata.VenueCrypto, BaseTimeframe: ""},
		InitialEquity:   20000,
		RiskPct:         0.5,
		MaxNotional:     15000,
		StopATRMult:     2,
		SlippageBps:     2,
		FeeRoundTripPct: 0.08,
		Indicators:      IndicatorConfig{EMAFast: 50, EMASlow: 200, RSILen: 14, ATRLen: 21},
		Trend:           TrendConfig{RSILong: 55, RSILongSoft: 48, RequireEMARising: true, EntryCushionATR: 0.15},
		MeanReversion:   MeanReversionConfig{RSIOversold: 40, RSIExit: 58},
		Guards: GuardConfig{
			MaxTradesPerDay:      6,
			MaxConsecutiveLosses: 4,
			LossDecayPerDay:      1,
			CooldownBars:         3,
			MinBarsBetween:       2,
			MinHoldBars:          2,
			DailyLossLimitPct:    1.5,
			ReentryATRAfterWin:   0.3,
			ReentryATRAfterLoss:  0.6,
			DayTimezone:          "UTC",
		},
		Session:      SessionConfig{Timezone: "America/New_York", Start: "", End: "", GraceMinutes: 2},
		Trailing:     TrailingConfig{Mode: TrailingBarATR, ATRMult: 2.2, ActivateR: 1.5, Percent: 4, UpdateOnClose: true},
		MomentumExit: MomentumExitConfig{Enabled: true, RMultiple: 0.3, RequireProfit: true},
		Pyramid: PyramidConfig{
			Enabled:         false,
			MaxAdds:         2,
			DonchianLen:     20,
			BreakoutATRMult: 0.25,
			MinR:            1,
			AddFraction:     0.5,
		},
		HTF:       HTFConfig{Mode: HTFEmaUp, Timeframe: "4h", RSIThreshold: 50, SafetyBars: 60, RefreshMinutes: 60},
		Live:      LiveConfig{PollSeconds: 60, SaveEvery: 3, EquityEvery: 6, ErrorSleepSeconds: 30, StateFile: ""},
		Retry:     RetryConfig{MaxAttempts: 5, InitialMs: 500, MaxMs: 30000},
		RateLimit: RateLimitConfig{PerSecond: 5, Burst: 5},
		Backtest:  BacktestConfig{LookbackBars: 1000, EndTime: ""},
		Output:    OutputConfig{Dir: "reports"},
		Seed:      42,
	}
}

// Load reads a JSON or YAML (by extension) document over Default and validates it.
// An empty path returns the validated defaults.
func Load(path string) (RunConfig, error) {
	config := Default()

	if path == "" {
		return config, config.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	return Parse(data, filepath.Ext(path))
}

// Parse decodes data over Default. ext selects the format: ".yaml" and ".yml" are YAML,
// anything else is JSON.
func Parse(data []byte, ext string) (RunConfig, error) {
	config := Default()

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return RunConfig{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse YAML config", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return RunConfig{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse JSON config", err)
		}
	}

	if err := config.Validate(); err != nil {
		return RunConfig{}, err
	}

	return config, nil
}

// Validate runs the struct tags and the checks tags cannot express.
func (c RunConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	if _, err := marketdata.ParseTimeframe(c.Timeframe); err != nil {
		return err
	}

	if _, err := marketdata.ParseTimeframe(c.HTF.Timeframe); err != nil {
		return err
	}

	if c.Backend == provider.ProviderParquet && c.Parquet.Path == "" {
		return errors.New(errors.ErrCodeInvalidConfiguration, "parquet.path is required for the parquet backend")
	}

	if c.Parquet.BaseTimeframe != "" {
		if _, err := marketdata.ParseTimeframe(c.Parquet.BaseTimeframe); err != nil {
			return err
		}
	}

	if _, err := loadLocation(c.Guards.DayTimezone); err != nil {
		return err
	}

	if (c.Session.Start == "") != (c.Session.End == "") {
		return errors.New(errors.ErrCodeInvalidConfiguration, "session start and end must be set together")
	}

	if c.Session.Start != "" {
		if _, err := loadLocation(c.Session.Timezone); err != nil {
			return err
		}

		if _, err := ParseClock(c.Session.Start); err != nil {
			return err
		}

		if _, err := ParseClock(c.Session.End); err != nil {
			return err
		}
	}

	if c.Backtest.EndTime != "" {
		if _, err := time.Parse(time.RFC3339, c.Backtest.EndTime); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfiguration, "backtest.endTime must be RFC3339", err)
		}
	}

	return nil
}

// StrategyInfo names the strategy and the entry thresholds in effect.
func (c RunConfig) StrategyInfo() types.StrategyInfo {
	return types.StrategyInfo{
		Name:        string(c.Strategy),
		RSILong:     c.Trend.RSILong,
		RSILongSoft: c.Trend.RSILongSoft,
	}
}

// TimeframeValue is the parsed run timeframe. Validate guarantees it parses.
func (c RunConfig) TimeframeValue() marketdata.Timeframe {
	tf, _ := marketdata.ParseTimeframe(c.Timeframe)

	return tf
}

// HTFTimeframeValue is the parsed HTF timeframe.
func (c RunConfig) HTFTimeframeValue() marketdata.Timeframe {
	tf, _ := marketdata.ParseTimeframe(c.HTF.Timeframe)

	return tf
}

// DayLocation is where the trading day rolls over.
func (c RunConfig) DayLocation() *time.Location {
	loc, err := loadLocation(c.Guards.DayTimezone)
	if err != nil {
		return time.UTC
	}

	return loc
}

// SessionLocation is the timezone of the session window.
func (c RunConfig) SessionLocation() *time.Location {
	loc, err := loadLocation(c.Session.Timezone)
	if err != nil {
		return time.UTC
	}

	return loc
}

// BacktestEnd is the configured end of the backtest window, if any.
func (c RunConfig) BacktestEnd() optional.Option[time.Time] {
	if c.Backtest.EndTime == "" {
		return optional.None[time.Time]()
	}

	end, err := time.Parse(time.RFC3339, c.Backtest.EndTime)
	if err != nil {
		return optional.None[time.Time]()
	}

	return optional.Some(end.UTC())
}

// WarmupBars is the number of bars needed before every series is defined.
func (c RunConfig) WarmupBars() int {
	warmup := max(c.Indicators.EMAFast, c.Indicators.EMASlow, c.Indicators.RSILen, c.Indicators.ATRLen)
	if c.Pyramid.Enabled {
		warmup = max(warmup, c.Pyramid.DonchianLen+1)
	}

	return warmup
}

var unsafePathChars = regexp.MustCompile(`[^\w.-]`)

// InstrumentDir is the report folder of one symbol, timeframe and strategy, so
// parallel runs on different instruments never share files.
func (c RunConfig) InstrumentDir() string {
	name := fmt.Sprintf("%s-%s-%s", unsafePathChars.ReplaceAllString(c.Symbol, "_"), c.Timeframe, c.Strategy)

	return filepath.Join(c.Output.Dir, name)
}

// StateFile is where the live snapshot lives.
func (c RunConfig) StateFile() string {
	if c.Live.StateFile != "" {
		return c.Live.StateFile
	}

	return filepath.Join(c.InstrumentDir(), "state.json")
}

// BackendConfig maps the run to the market data factory. The equities key is read
// from the environment.
func (c RunConfig) BackendConfig() provider.BackendConfig {
	return provider.BackendConfig{
		Type:                 c.Backend,
		PolygonApiKey:        os.Getenv(PolygonApiKeyEnv),
		ParquetPath:          c.Parquet.Path,
		ParquetVenue:         c.Parquet.Venue,
		ParquetBaseTimeframe: c.Parquet.BaseTimeframe,
		RequestsPerSecond:    c.RateLimit.PerSecond,
		Burst:                c.RateLimit.Burst,
		Retry: marketdata.RetryConfig{
			MaxAttempts:     c.Retry.MaxAttempts,
			InitialInterval: time.Duration(c.Retry.InitialMs) * time.Millisecond,
			MaxInterval:     time.Duration(c.Retry.MaxMs) * time.Millisecond,
		},
	}
}

// Clock is a wall-clock time of day in minutes after midnight.
type Clock int

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid clock %q, expected HH:MM", s)
	}

	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "unknown timezone %q", name)
	}

	return loc, nil
}
