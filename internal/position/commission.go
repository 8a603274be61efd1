package position

import "github.com/shopspring/decimal"

// CommissionFee prices the round trip of a position from its entry notional.
type CommissionFee interface {
	// Calculate returns the fee charged on notional, in quote currency.
	Calculate(notional float64) float64
}

// PercentCommissionFee charges a flat percentage of the entry notional.
type PercentCommissionFee struct {
	pct decimal.Decimal
}

func NewPercentCommissionFee(roundTripPct float64) CommissionFee {
	return &PercentCommissionFee{pct: decimal.NewFromFloat(roundTripPct)}
}

func (c *PercentCommissionFee) Calculate(notional float64) float64 {
	return decimal.NewFromFloat(notional).Mul(c.pct).Div(decimal.NewFromInt(100)).InexactFloat64()
}

type ZeroCommissionFee struct{}

func NewZeroCommissionFee() CommissionFee {
	return &ZeroCommissionFee{}
}

func (c *ZeroCommissionFee) Calculate(float64) float64 {
	return 0
}

// GetCommissionFeeHandler picks the fee model for a configured round-trip percentage.
func GetCommissionFeeHandler(roundTripPct float64) CommissionFee {
	if roundTripPct <= 0 {
		return NewZeroCommissionFee()
	}

	return NewPercentCommissionFee(roundTripPct)
}
