package marketdata

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type TimeframeTestSuite struct {
	suite.Suite
}

func TestTimeframeSuite(t *testing.T) {
	suite.Run(t, new(TimeframeTestSuite))
}

func (suite *TimeframeTestSuite) TestParseTimeframe() {
	tests := []struct {
		name       string
		input      string
		multiplier int
		duration   time.Duration
		timespan   models.Timespan
		intraday   bool
	}{
		{name: "1 minute", input: "1m", multiplier: 1, duration: time.Minute, timespan: models.Minute, intraday: true},
		{name: "15 minutes", input: "15m", multiplier: 15, duration: 15 * time.Minute, timespan: models.Minute, intraday: true},
		{name: "4 hours", input: "4h", multiplier: 4, duration: 4 * time.Hour, timespan: models.Hour, intraday: true},
		{name: "1 day", input: "1d", multiplier: 1, duration: 24 * time.Hour, timespan: models.Day, intraday: false},
		{name: "1 week", input: "1w", multiplier: 1, duration: 7 * 24 * time.Hour, timespan: models.Week, intraday: false},
		{name: "1 month", input: "1M", multiplier: 1, duration: 30 * 24 * time.Hour, timespan: models.Month, intraday: false},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			tf, err := ParseTimeframe(tc.input)
			suite.Require().NoError(err)
			suite.Equal(tc.multiplier, tf.Multiplier())
			suite.Equal(tc.duration, tf.Duration())
			suite.Equal(tc.timespan, tf.Timespan())
			suite.Equal(tc.intraday, tf.IsIntraday())
			suite.Equal(tc.input, tf.String())
		})
	}
}

func (suite *TimeframeTestSuite) TestParseTimeframeInvalid() {
	for _, input := range []string{"", "0m", "m", "1x", "1.5h", "h1", "-1d"} {
		suite.Run(input, func() {
			_, err := ParseTimeframe(input)
			suite.Error(err)
			suite.True(errors.HasCode(err, errors.ErrCodeInvalidTimeframe))
		})
	}
}

func (suite *TimeframeTestSuite) TestJSONRoundTrip() {
	var payload struct {
		Timeframe Timeframe `json:"timeframe"`
	}

	suite.Require().NoError(json.Unmarshal([]byte(`{"timeframe":"30m"}`), &payload))
	suite.Equal(30*time.Minute, payload.Timeframe.Duration())

	out, err := json.Marshal(payload)
	suite.Require().NoError(err)
	suite.JSONEq(`{"timeframe":"30m"}`, string(out))

	suite.Error(json.Unmarshal([]byte(`{"timeframe":"7q"}`), &payload))
}

func (suite *TimeframeTestSuite) TestZeroValue() {
	var tf Timeframe
	suite.True(tf.IsZero())
	suite.Equal("", tf.String())
}
