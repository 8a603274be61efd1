package htf

import (
	"context"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-guard/internal/config"
	"github.com/rxtech-lab/argo-guard/mocks"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type FilterTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	backend *mocks.MockBackend
	cfg     config.RunConfig
	start   time.Time
	day     marketdata.Timeframe
}

func TestFilterSuite(t *testing.T) {
	suite.Run(t, new(FilterTestSuite))
}

func (suite *FilterTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.backend = mocks.NewMockBackend(suite.ctrl)
	suite.backend.EXPECT().Venue().Return(marketdata.VenueCrypto).AnyTimes()

	suite.cfg = mocks.RunConfig()
	suite.cfg.Indicators = config.IndicatorConfig{EMAFast: 2, EMASlow: 3, RSILen: 2, ATRLen: 2}
	suite.cfg.HTF.Timeframe = "1d"
	suite.cfg.HTF.SafetyBars = 2
	suite.cfg.HTF.RefreshMinutes = 60
	suite.cfg.HTF.RSIThreshold = 50

	suite.start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.day = marketdata.MustParseTimeframe("1d")
}

func (suite *FilterTestSuite) newFilter(mode config.HTFMode, closes []float64) *Filter {
	suite.cfg.HTF.Mode = mode
	filter := NewFilter(suite.cfg, suite.backend)

	if closes != nil {
		rows := mocks.FromCloses("BTCUSDT", suite.start, 24*time.Hour, closes, 1)
		suite.backend.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", suite.day, 5).Return(rows, nil)
		suite.Require().NoError(filter.Refresh(context.Background(), suite.start))
	}

	return filter
}

// closeOf is the close instant of daily bar i.
func (suite *FilterTestSuite) closeOf(i int) time.Time {
	return suite.start.Add(time.Duration(i+1) * 24 * time.Hour)
}

func (suite *FilterTestSuite) TestIndexAtOrBefore() {
	filter := suite.newFilter(config.HTFEmaUp, mocks.Linear(100, 1, 5))

	suite.Equal(-1, filter.IndexAtOrBefore(suite.start))
	suite.Equal(-1, filter.IndexAtOrBefore(suite.closeOf(0).Add(-time.Second)))
	suite.Equal(0, filter.IndexAtOrBefore(suite.closeOf(0)))
	suite.Equal(0, filter.IndexAtOrBefore(suite.closeOf(1).Add(-time.Nanosecond)))
	suite.Equal(4, filter.IndexAtOrBefore(suite.closeOf(10)))
}

func (suite *FilterTestSuite) TestNoLookahead() {
	filter := suite.newFilter(config.HTFEmaUp, mocks.Linear(100, 1, 5))
	bars := filter.Bars()

	for t := suite.start; t.Before(suite.closeOf(6)); t = t.Add(37 * time.Minute) {
		idx := filter.IndexAtOrBefore(t)
		if idx >= 0 {
			suite.False(bars[idx].Time.After(t))
		}

		if idx+1 < len(bars) {
			suite.True(bars[idx+1].Time.After(t))
		}
	}
}

func (suite *FilterTestSuite) TestEmaUp() {
	up := suite.newFilter(config.HTFEmaUp, mocks.Linear(100, 1, 5))

	pass, verdict := up.Pass(suite.closeOf(0))
	suite.True(pass)
	suite.Equal("ema-warmup", verdict.Reason)

	pass, verdict = up.Pass(suite.closeOf(4))
	suite.True(pass)
	suite.Equal("ema-up", verdict.Reason)
	suite.Equal(4, verdict.Index)

	down := suite.newFilter(config.HTFEmaUp, mocks.Linear(100, -1, 5))

	pass, verdict = down.Pass(suite.closeOf(4))
	suite.False(pass)
	suite.Equal("ema-down", verdict.Reason)
}

func (suite *FilterTestSuite) TestEmaUpPassesBeforeAnyBar() {
	filter := suite.newFilter(config.HTFEmaUp, mocks.Linear(100, -1, 5))

	pass, verdict := filter.Pass(suite.start)
	suite.True(pass)
	suite.Equal(-1, verdict.Index)
}

func (suite *FilterTestSuite) TestRsiAbove() {
	up := suite.newFilter(config.HTFRsiAbove, mocks.Linear(100, 1, 5))

	pass, verdict := up.Pass(suite.start)
	suite.False(pass)
	suite.Equal("rsi-missing", verdict.Reason)

	pass, verdict = up.Pass(suite.closeOf(3))
	suite.True(pass)
	suite.Equal("rsi-above", verdict.Reason)

	down := suite.newFilter(config.HTFRsiAbove, mocks.Linear(100, -1, 5))

	pass, _ = down.Pass(suite.closeOf(3))
	suite.False(pass)
}

func (suite *FilterTestSuite) TestEmaUpOrRsi() {
	// falls long enough for the slow EMA to sit above the fast one, then bounces
	closes := []float64{110, 105, 100, 95, 90, 96}
	suite.cfg.Indicators.EMASlow = 4
	suite.cfg.HTF.Mode = config.HTFEmaUpOrRsi
	filter := NewFilter(suite.cfg, suite.backend)

	rows := mocks.FromCloses("BTCUSDT", suite.start, 24*time.Hour, closes, 1)
	suite.backend.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", suite.day, 6).Return(rows, nil)
	suite.Require().NoError(filter.Refresh(context.Background(), suite.start))

	pass, verdict := filter.Pass(suite.closeOf(1))
	suite.True(pass)
	suite.Equal("ema-warmup", verdict.Reason)

	pass, verdict = filter.Pass(suite.closeOf(4))
	suite.False(pass)
	suite.Equal("ema-down-rsi-below", verdict.Reason)

	pass, verdict = filter.Pass(suite.closeOf(5))
	suite.True(pass)
	suite.Equal("rsi-above", verdict.Reason)
}

func (suite *FilterTestSuite) TestOffAlwaysPasses() {
	filter := suite.newFilter(config.HTFOff, nil)

	suite.False(filter.Enabled())
	suite.False(filter.NeedsRefresh(suite.start))
	suite.NoError(filter.Refresh(context.Background(), suite.start))

	pass, verdict := filter.Pass(suite.start)
	suite.True(pass)
	suite.Equal("off", verdict.Reason)
}

func (suite *FilterTestSuite) TestNeedsRefresh() {
	filter := suite.newFilter(config.HTFEmaUp, nil)
	suite.True(filter.NeedsRefresh(suite.start))

	suite.backend.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(mocks.Uptrend(5), nil)
	suite.Require().NoError(filter.Refresh(context.Background(), suite.start))

	suite.False(filter.NeedsRefresh(suite.start.Add(59 * time.Minute)))
	suite.True(filter.NeedsRefresh(suite.start.Add(60 * time.Minute)))
}

func (suite *FilterTestSuite) TestRefreshErrorKeepsCode() {
	filter := suite.newFilter(config.HTFEmaUp, nil)
	suite.backend.EXPECT().FetchRecent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New(errors.ErrCodeRetryExhausted, "gave up"))

	err := filter.Refresh(context.Background(), suite.start)
	suite.True(errors.HasCode(err, errors.ErrCodeRetryExhausted))
	suite.True(filter.NeedsRefresh(suite.start))
}

func (suite *FilterTestSuite) TestRefreshRange() {
	filter := suite.newFilter(config.HTFEmaUp, nil)
	from := suite.start.Add(10 * 24 * time.Hour)
	to := from.Add(5 * 24 * time.Hour)
	since := from.Add(-5 * 24 * time.Hour)

	suite.backend.EXPECT().
		FetchRange(gomock.Any(), "BTCUSDT", suite.day, since.UnixMilli(), 12).
		Return(mocks.FromCloses("BTCUSDT", since, 24*time.Hour, mocks.Linear(100, 1, 12), 1), nil)

	suite.Require().NoError(filter.RefreshRange(context.Background(), from, to))
	suite.Len(filter.Bars(), 12)
	suite.False(filter.NeedsRefresh(to))
}

func (suite *FilterTestSuite) TestVerdictFields() {
	filter := suite.newFilter(config.HTFEmaUp, mocks.Linear(100, 1, 5))

	_, verdict := filter.Pass(suite.closeOf(4))
	fields := verdict.Fields()
	suite.Equal("ema-up", fields["reason"])
	suite.Contains(fields, "emaFast")
	suite.Contains(fields, "rsi")

	_, verdict = filter.Pass(suite.start)
	suite.NotContains(verdict.Fields(), "barTime")
	suite.NotContains(verdict.Fields(), "emaFast")
}
