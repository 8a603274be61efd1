package marketdata_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/mocks"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/rxtech-lab/argo-guard/pkg/marketdata"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type RetryBackendTestSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	backend *mocks.MockBackend
	retry   *marketdata.RetryBackend
	tf      marketdata.Timeframe
}

func TestRetryBackendSuite(t *testing.T) {
	suite.Run(t, new(RetryBackendTestSuite))
}

func (suite *RetryBackendTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.backend = mocks.NewMockBackend(suite.ctrl)
	suite.retry = marketdata.NewRetryBackend(suite.backend, marketdata.RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, logger.NewNopLogger())
	suite.tf = marketdata.MustParseTimeframe("1h")
}

func (suite *RetryBackendTestSuite) TearDownTest() {
	suite.ctrl.Finish()
}

func (suite *RetryBackendTestSuite) TestSucceedsAfterTransientFailures() {
	rows := []types.MarketData{{Symbol: "BTCUSDT", Close: 1}}

	gomock.InOrder(
		suite.backend.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", suite.tf, 10).Return(nil, stderrors.New("timeout")),
		suite.backend.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", suite.tf, 10).Return(nil, stderrors.New("timeout")),
		suite.backend.EXPECT().FetchRecent(gomock.Any(), "BTCUSDT", suite.tf, 10).Return(rows, nil),
	)

	got, err := suite.retry.FetchRecent(context.Background(), "BTCUSDT", suite.tf, 10)
	suite.NoError(err)
	suite.Equal(rows, got)
}

func (suite *RetryBackendTestSuite) TestGivesUpAfterMaxAttempts() {
	suite.backend.EXPECT().
		FetchRange(gomock.Any(), "BTCUSDT", suite.tf, int64(1000), 50).
		Return(nil, errors.New(errors.ErrCodeMarketDataFetchFailed, "503")).
		Times(3)

	_, err := suite.retry.FetchRange(context.Background(), "BTCUSDT", suite.tf, 1000, 50)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeRetryExhausted))
}

func (suite *RetryBackendTestSuite) TestPermanentErrorIsNotRetried() {
	suite.backend.EXPECT().
		FetchRecent(gomock.Any(), "BTCUSDT", suite.tf, 10).
		Return(nil, errors.New(errors.ErrCodeInvalidTimeframe, "unsupported interval")).
		Times(1)

	_, err := suite.retry.FetchRecent(context.Background(), "BTCUSDT", suite.tf, 10)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidTimeframe))
}

func (suite *RetryBackendTestSuite) TestVenuePassesThrough() {
	suite.backend.EXPECT().Venue().Return(marketdata.VenueEquities)
	suite.Equal(marketdata.VenueEquities, suite.retry.Venue())
}
