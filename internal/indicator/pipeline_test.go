package indicator

import (
	"testing"
	"time"

	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/mocks"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
	"github.com/stretchr/testify/suite"
)

type PipelineTestSuite struct {
	suite.Suite
	pipeline *Pipeline
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func (suite *PipelineTestSuite) SetupTest() {
	suite.pipeline = NewPipeline(Periods{EMAFast: 5, EMASlow: 10, RSI: 14, ATR: 21})
}

func (suite *PipelineTestSuite) TestEmptyInput() {
	bars := suite.pipeline.Compute(nil, FixedDuration{Timeframe: marketdata.MustParseTimeframe("1h")})
	suite.NotNil(bars)
	suite.Empty(bars)
}

func (suite *PipelineTestSuite) TestComputeAlignsToClose() {
	rows := mocks.Uptrend(30)
	bars := suite.pipeline.Compute(rows, FixedDuration{Timeframe: marketdata.MustParseTimeframe("1h")})

	suite.Require().Len(bars, 30)
	suite.Equal(21, suite.pipeline.Periods().Warmup())

	for i, bar := range bars {
		suite.Equal(rows[i].Time, bar.OpenTime)
		suite.Equal(rows[i].Time.Add(time.Hour), bar.Time)
		suite.Equal(rows[i].Close, bar.Close)

		if i > 0 {
			suite.True(bar.Time.After(bars[i-1].Time))
		}
	}

	suite.True(bars[3].EMAFast.IsNone())
	suite.True(bars[4].EMAFast.IsSome())
	suite.True(bars[8].EMASlow.IsNone())
	suite.True(bars[9].EMASlow.IsSome())
	suite.True(bars[19].ATR.IsNone())

	atr, ok := bars[20].ATRValue()
	suite.True(ok)
	suite.InDelta(2.0, atr, 1e-9)
	suite.Equal(100.0, bars[29].RSI.Unwrap())
}

func (suite *PipelineTestSuite) TestNilAlignerKeepsOpenTime() {
	rows := mocks.Uptrend(3)
	bars := suite.pipeline.Compute(rows, nil)
	suite.Equal(rows[0].Time, bars[0].Time)
}

func (suite *PipelineTestSuite) TestHighs() {
	bars := []types.Bar{{High: 1}, {High: 3}}
	suite.Equal([]float64{1, 3}, Highs(bars))
}

type AlignTestSuite struct {
	suite.Suite
	ny *time.Location
}

func TestAlignSuite(t *testing.T) {
	suite.Run(t, new(AlignTestSuite))
}

func (suite *AlignTestSuite) SetupTest() {
	loc, err := time.LoadLocation("America/New_York")
	suite.Require().NoError(err)
	suite.ny = loc
}

func (suite *AlignTestSuite) TestFixedDuration() {
	open := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.Equal(open.Add(4*time.Hour), FixedDuration{Timeframe: marketdata.MustParseTimeframe("4h")}.CloseTime(open))
}

func (suite *AlignTestSuite) TestEquitiesDailyClosesAtSessionClose() {
	aligner := NewEquitiesSession(marketdata.MustParseTimeframe("1d"))

	// daily aggregates are stamped at midnight New York time
	winter := time.Date(2024, 3, 8, 0, 0, 0, 0, suite.ny)
	suite.Equal(time.Date(2024, 3, 8, 21, 0, 0, 0, time.UTC), aligner.CloseTime(winter))

	summer := time.Date(2024, 3, 11, 0, 0, 0, 0, suite.ny)
	suite.Equal(time.Date(2024, 3, 11, 20, 0, 0, 0, time.UTC), aligner.CloseTime(summer))
}

func (suite *AlignTestSuite) TestEquitiesIntradayCappedAtSessionClose() {
	aligner := NewEquitiesSession(marketdata.MustParseTimeframe("1h"))

	open := time.Date(2024, 3, 8, 15, 30, 0, 0, suite.ny)
	suite.Equal(time.Date(2024, 3, 8, 16, 0, 0, 0, suite.ny).UTC(), aligner.CloseTime(open))

	morning := time.Date(2024, 3, 8, 9, 30, 0, 0, suite.ny)
	suite.Equal(morning.Add(time.Hour).UTC(), aligner.CloseTime(morning))

	afterHours := time.Date(2024, 3, 8, 16, 30, 0, 0, suite.ny)
	suite.Equal(afterHours.Add(time.Hour).UTC(), aligner.CloseTime(afterHours))
}

func (suite *AlignTestSuite) TestAlignerFor() {
	tf := marketdata.MustParseTimeframe("1d")

	_, ok := AlignerFor(marketdata.VenueCrypto, tf).(FixedDuration)
	suite.True(ok)

	_, ok = AlignerFor(marketdata.VenueEquities, tf).(EquitiesSession)
	suite.True(ok)
}
