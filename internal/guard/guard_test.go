package guard

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-guard/internal/config"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/stretchr/testify/suite"
)

type GuardTestSuite struct {
	suite.Suite
	cfg config.RunConfig
	at  time.Time
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardTestSuite))
}

func (suite *GuardTestSuite) SetupTest() {
	suite.cfg = config.Default()
	suite.at = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
}

// passingBar satisfies the trend signal with the default thresholds.
func (suite *GuardTestSuite) passingBar() types.Bar {
	return types.Bar{
		Time:    suite.at,
		Close:   110,
		High:    111,
		Low:     109,
		EMAFast: optional.Some(100.0),
		EMASlow: optional.Some(95.0),
		RSI:     optional.Some(60.0),
		ATR:     optional.Some(2.0),
	}
}

func (suite *GuardTestSuite) input(bar types.Bar) Input {
	return Input{Bar: bar, Prev: nil, HTFPass: true, Open: nil, Equity: 10000}
}

func (suite *GuardTestSuite) TestAllowed() {
	g := New(suite.cfg)

	decision := g.Evaluate(suite.input(suite.passingBar()))
	suite.True(decision.Allowed)
	suite.Empty(decision.Reason)
	suite.Empty(g.State().Blocked)
}

func (suite *GuardTestSuite) TestOrderingFirstFailureWins() {
	g := New(suite.cfg)
	g.Restore(State{
		BarsSinceEntry:    0,
		CooldownLeft:      3,
		ConsecutiveLosses: 5,
		TradesToday:       9,
		DayStamp:          "2024-01-02",
		DayStartEquity:    20000,
		HasLastExit:       true,
		LastExitPrice:     110,
		LastExitATR:       2,
		Blocked:           nil,
	})

	bar := suite.passingBar()
	in := suite.input(bar)
	in.HTFPass = false
	in.Open = &types.Position{Size: 1, HoldBars: 0}

	// every check fails; peel them off one at a time in order
	steps := []struct {
		want  Reason
		relax func()
	}{
		{ReasonATRNotReady, func() { in.Bar.ATR = optional.Some(2.0) }},
		{ReasonSignal, func() { in.Bar.RSI = optional.Some(60.0) }},
		{ReasonHTFVeto, func() { in.HTFPass = true }},
		{ReasonCooldown, func() { g.state.CooldownLeft = 0 }},
		{ReasonMinBarsBetween, func() { g.state.BarsSinceEntry = 10 }},
		{ReasonMaxTradesDay, func() { g.state.TradesToday = 0 }},
		{ReasonMaxConsecLosses, func() { g.state.ConsecutiveLosses = 0 }},
		{ReasonMinHold, func() { in.Open = nil }},
		{ReasonDailyLossLimit, func() { g.state.DayStartEquity = 10000 }},
		{ReasonReentryTooClose, func() { g.state.LastExitPrice = 100 }},
	}

	in.Bar.ATR = optional.None[float64]()
	in.Bar.RSI = optional.Some(10.0)

	for _, step := range steps {
		decision := g.Evaluate(in)
		suite.Require().False(decision.Allowed)
		suite.Equal(step.want, decision.Reason)
		step.relax()
	}

	suite.True(g.Evaluate(in).Allowed)

	blocked := g.State().Blocked
	for _, step := range steps {
		suite.Equal(1, blocked[step.want], step.want)
	}
}

func (suite *GuardTestSuite) TestOutsideSessionOrderedAfterHTF() {
	suite.cfg.Session = config.SessionConfig{Timezone: "America/New_York", Start: "09:30", End: "16:00", GraceMinutes: 5}
	g := New(suite.cfg)

	bar := suite.passingBar()
	// 03:00 in New York
	bar.Time = time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	in := suite.input(bar)
	in.HTFPass = false

	suite.Equal(ReasonHTFVeto, g.Evaluate(in).Reason)

	in.HTFPass = true
	suite.Equal(ReasonOutsideSession, g.Evaluate(in).Reason)

	// 09:26 New York is inside the grace margin
	in.Bar.Time = time.Date(2024, 1, 2, 14, 26, 0, 0, time.UTC)
	suite.True(g.Evaluate(in).Allowed)

	// 16:06 New York is past it
	in.Bar.Time = time.Date(2024, 1, 2, 21, 6, 0, 0, time.UTC)
	suite.Equal(ReasonOutsideSession, g.Evaluate(in).Reason)
}

func (suite *GuardTestSuite) TestOvernightSession() {
	suite.cfg.Session = config.SessionConfig{Timezone: "UTC", Start: "22:00", End: "02:00", GraceMinutes: 0}
	g := New(suite.cfg)

	bar := suite.passingBar()
	bar.Time = time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC)
	suite.True(g.Check(suite.input(bar)).Allowed)

	bar.Time = time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	suite.Equal(ReasonOutsideSession, g.Check(suite.input(bar)).Reason)
}

func (suite *GuardTestSuite) TestTrendSignal() {
	g := New(suite.cfg)

	tests := []struct {
		name   string
		mutate func(bar *types.Bar, prev *types.Bar)
		sub    string
	}{
		{name: "hard pass", mutate: func(*types.Bar, *types.Bar) {}, sub: ""},
		{name: "rsi missing", mutate: func(b *types.Bar, _ *types.Bar) { b.RSI = optional.None[float64]() }, sub: SignalRSINotReady},
		{name: "ema missing", mutate: func(b *types.Bar, _ *types.Bar) { b.EMAFast = optional.None[float64]() }, sub: SignalEMANotReady},
		{name: "rsi below soft", mutate: func(b *types.Bar, _ *types.Bar) { b.RSI = optional.Some(40.0) }, sub: SignalRSIBelow},
		{name: "soft pass with rising fast ema", mutate: func(b *types.Bar, _ *types.Bar) { b.RSI = optional.Some(50.0) }, sub: ""},
		{name: "soft fails when fast ema falls", mutate: func(b *types.Bar, p *types.Bar) {
			b.RSI = optional.Some(50.0)
			p.EMAFast = optional.Some(101.0)
		}, sub: SignalRSIBelow},
		{name: "soft fails below slow ema", mutate: func(b *types.Bar, _ *types.Bar) {
			b.RSI = optional.Some(50.0)
			b.EMASlow = optional.Some(105.0)
		}, sub: SignalRSIBelow},
		{name: "soft pass without a previous bar", mutate: func(b *types.Bar, p *types.Bar) {
			b.RSI = optional.Some(50.0)
			p.EMAFast = optional.None[float64]()
		}, sub: ""},
		{name: "rsi equal to hard threshold needs structure", mutate: func(b *types.Bar, _ *types.Bar) {
			b.RSI = optional.Some(55.0)
			b.EMASlow = optional.Some(105.0)
		}, sub: SignalRSIBelow},
		{name: "below cushion", mutate: func(b *types.Bar, _ *types.Bar) { b.Close = 100.1 }, sub: SignalBelowCushion},
		{name: "exactly at cushion", mutate: func(b *types.Bar, _ *types.Bar) {
			b.Close = 100 + config.Default().Trend.EntryCushionATR*2
		}, sub: SignalBelowCushion},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			bar := suite.passingBar()
			prev := suite.passingBar()
			prev.EMAFast = optional.Some(99.0)
			tc.mutate(&bar, &prev)

			in := suite.input(bar)
			in.Prev = &prev
			decision := g.Check(in)

			if tc.sub == "" {
				suite.True(decision.Allowed)

				return
			}

			suite.Equal(ReasonSignal, decision.Reason)
			suite.Equal(tc.sub, decision.Details["sub"])
		})
	}
}

func (suite *GuardTestSuite) TestMeanReversionCross() {
	suite.cfg.Strategy = config.StrategyMeanReversion
	g := New(suite.cfg)

	bar := suite.passingBar()
	bar.RSI = optional.Some(41.0)
	prev := suite.passingBar()
	prev.RSI = optional.Some(38.0)

	in := suite.input(bar)
	suite.Equal(SignalRSINotReady, g.Check(in).Details["sub"])

	in.Prev = &prev
	suite.True(g.Check(in).Allowed)

	prev.RSI = optional.Some(42.0)
	suite.Equal(SignalNoCross, g.Check(in).Details["sub"])
}

func (suite *GuardTestSuite) TestReentryDistance() {
	g := New(suite.cfg)
	bar := suite.passingBar()

	// a winning exit at 110 needs a close of 110 + 0.3 * 2 (bar ATR); the exit ATR plays no part
	g.OnExit(110, 4, 25)
	suite.Equal(ReasonReentryTooClose, g.Check(suite.input(bar)).Reason)

	bar.Close = 110.5
	decision := g.Check(suite.input(bar))
	suite.Equal(ReasonReentryTooClose, decision.Reason)
	suite.InDelta(110.6, decision.Details["need"], 1e-9)

	bar.Close = 111
	suite.True(g.Check(suite.input(bar)).Allowed)

	// a losing exit needs 110 + 0.6 * 2
	g.OnExit(110, 2, -25)
	g.state.CooldownLeft = 0
	suite.Equal(ReasonReentryTooClose, g.Check(suite.input(bar)).Reason)

	bar.Close = 111.5
	suite.True(g.Check(suite.input(bar)).Allowed)
}

func (suite *GuardTestSuite) TestReentryBelowExitBlocked() {
	g := New(suite.cfg)
	g.OnExit(110, 2, -20)
	g.state.CooldownLeft = 0

	// far under the stop-out price is not a re-entry
	bar := suite.passingBar()
	bar.Close = 106.5
	decision := g.Check(suite.input(bar))
	suite.Equal(ReasonReentryTooClose, decision.Reason)
	suite.InDelta(111.2, decision.Details["need"], 1e-9)
	suite.Equal(false, decision.Details["profitable"])
}

func (suite *GuardTestSuite) TestDailyLossLimit() {
	g := New(suite.cfg)
	g.RollDay(suite.at, 10000)

	in := suite.input(suite.passingBar())
	in.Equity = 9860
	suite.True(g.Check(in).Allowed)

	in.Equity = 9800
	suite.Equal(ReasonDailyLossLimit, g.Check(in).Reason)
}

func (suite *GuardTestSuite) TestTwoStopOutsCooldown() {
	g := New(suite.cfg)

	g.OnEntry()
	g.OnExit(100, 2, -20)
	g.OnEntry()
	g.OnExit(96, 2, -20)

	state := g.State()
	suite.Equal(2, state.ConsecutiveLosses)
	suite.Equal(3, state.CooldownLeft)

	bar := suite.passingBar()
	for range 2 {
		g.OnBar()
		suite.Equal(ReasonCooldown, g.Evaluate(suite.input(bar)).Reason)
	}

	g.OnBar()
	suite.NotEqual(ReasonCooldown, g.Check(suite.input(bar)).Reason)
	suite.Equal(2, g.State().Blocked[ReasonCooldown])
}

func (suite *GuardTestSuite) TestWinResetsStreakWithoutCooldown() {
	g := New(suite.cfg)
	g.OnExit(100, 2, -1)
	g.state.CooldownLeft = 0
	g.OnExit(120, 2, 50)

	state := g.State()
	suite.Zero(state.ConsecutiveLosses)
	suite.Zero(state.CooldownLeft)
	suite.True(state.LastExitProfitable)
}

func (suite *GuardTestSuite) TestDailyReset() {
	suite.cfg.Guards.LossDecayPerDay = 1
	g := New(suite.cfg)

	suite.False(g.RollDay(suite.at, 10000))
	suite.Equal("2024-01-02", g.State().DayStamp)

	g.OnEntry()
	g.OnEntry()
	g.state.ConsecutiveLosses = 3

	// same day: nothing changes
	suite.False(g.RollDay(suite.at.Add(8*time.Hour), 9000))
	suite.Equal(2, g.State().TradesToday)
	suite.Equal(3, g.State().ConsecutiveLosses)
	suite.Equal(10000.0, g.State().DayStartEquity)

	// next day: exactly one decay
	suite.True(g.RollDay(suite.at.Add(10*time.Hour), 9500))
	suite.Zero(g.State().TradesToday)
	suite.Equal(2, g.State().ConsecutiveLosses)
	suite.Equal(9500.0, g.State().DayStartEquity)

	suite.False(g.RollDay(suite.at.Add(11*time.Hour), 9400))
	suite.Equal(2, g.State().ConsecutiveLosses)

	g.state.ConsecutiveLosses = 0
	suite.True(g.RollDay(suite.at.Add(48*time.Hour), 9400))
	suite.Zero(g.State().ConsecutiveLosses)
}

func (suite *GuardTestSuite) TestDayTimezone() {
	suite.cfg.Guards.DayTimezone = "Asia/Tokyo"
	g := New(suite.cfg)

	// 15:00 UTC is already the next day in Tokyo
	g.RollDay(suite.at, 10000)
	suite.Equal("2024-01-03", g.State().DayStamp)
	suite.Equal("2024-01-02", DayStamp(suite.at, nil))
}

func (suite *GuardTestSuite) TestCanAdd() {
	suite.cfg.Guards.MaxTradesPerDay = 3
	g := New(suite.cfg)

	ok, reason := g.CanAdd(types.Position{Size: 1, HoldBars: 1})
	suite.False(ok)
	suite.Equal(ReasonMinHold, reason)

	ok, _ = g.CanAdd(types.Position{Size: 1, HoldBars: 2})
	suite.True(ok)

	g.OnEntry()
	g.OnAdd()
	g.OnAdd()
	ok, reason = g.CanAdd(types.Position{Size: 1, HoldBars: 5})
	suite.False(ok)
	suite.Equal(ReasonMaxTradesDay, reason)
}

func (suite *GuardTestSuite) TestStateCopyAndRestore() {
	g := New(suite.cfg)
	g.Evaluate(Input{Bar: types.Bar{}, HTFPass: true})

	state := g.State()
	state.Blocked[ReasonSignal] = 99
	suite.Equal(1, g.State().Blocked[ReasonATRNotReady])
	suite.Zero(g.State().Blocked[ReasonSignal])

	g.Restore(State{TradesToday: 2})
	suite.NotNil(g.State().Blocked)
	suite.Equal(2, g.State().TradesToday)
}
