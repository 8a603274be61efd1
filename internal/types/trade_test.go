package types

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type TradeTestSuite struct {
	suite.Suite
}

func TestTradeSuite(t *testing.T) {
	suite.Run(t, new(TradeTestSuite))
}

func (suite *TradeTestSuite) TestOpenRisk() {
	tests := []struct {
		name     string
		position Position
		want     float64
	}{
		{name: "flat", position: Position{}, want: 0},
		{name: "stop below entry", position: Position{Size: 10, Entry: 100, Stop: 96}, want: 40},
		{name: "stop above entry", position: Position{Size: 10, Entry: 100, Stop: 101}, want: 0},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.InDelta(tc.want, tc.position.OpenRisk(), 1e-9)
		})
	}
}

func (suite *TradeTestSuite) TestUnrealizedPnL() {
	position := Position{Size: 2.5, Entry: 100}
	suite.InDelta(25.0, position.UnrealizedPnL(110), 1e-9)
	suite.InDelta(-12.5, position.UnrealizedPnL(95), 1e-9)
	suite.Zero(Position{}.UnrealizedPnL(95))
}

func (suite *TradeTestSuite) TestIsOpen() {
	suite.False(Position{}.IsOpen())
	suite.True(Position{Size: 0.01}.IsOpen())
}
