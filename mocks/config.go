package mocks

import "github.com/rxtech-lab/argo-guard/internal/config"

// RunConfig is a run configuration with the scenario parameters the engine and
// trader tests are written against. It pins every threshold those scenarios
// depend on, so changing a documented default does not move their bars.
func RunConfig() config.RunConfig {
	cfg := config.Default()

	cfg.InitialEquity = 10000
	cfg.RiskPct = 1
	cfg.MaxNotional = 0
	cfg.SlippageBps = 5
	cfg.FeeRoundTripPct = 0.1

	cfg.Trend.EntryCushionATR = 0.1
	cfg.MeanReversion = config.MeanReversionConfig{RSIOversold: 30, RSIExit: 55}
	cfg.Guards = config.GuardConfig{
		MaxTradesPerDay:      3,
		MaxConsecutiveLosses: 3,
		LossDecayPerDay:      1,
		CooldownBars:         6,
		MinBarsBetween:       3,
		MinHoldBars:          2,
		DailyLossLimitPct:    3,
		ReentryATRAfterWin:   0.5,
		ReentryATRAfterLoss:  1.5,
		DayTimezone:          "UTC",
	}
	cfg.Session.GraceMinutes = 5
	cfg.Trailing = config.TrailingConfig{
		Mode:          config.TrailingBarATR,
		ATRMult:       2,
		ActivateR:     1,
		Percent:       5,
		UpdateOnClose: true,
	}
	cfg.MomentumExit = config.MomentumExitConfig{Enabled: false, RMultiple: 3, RequireProfit: true}
	cfg.HTF = config.HTFConfig{Mode: config.HTFOff, Timeframe: "1d", RSIThreshold: 50, SafetyBars: 50, RefreshMinutes: 60}
	cfg.Live.SaveEvery = 5
	cfg.Live.EquityEvery = 5

	return cfg
}
