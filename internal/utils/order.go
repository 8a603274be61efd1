package utils

import (
	"math"
)

// QuantityDecimals is the precision every order quantity is floored to.
const QuantityDecimals = 8

// CalculateRiskQuantity returns the quantity that loses riskBudget when the price
// moves stopDistance against it. Non-positive inputs yield 0.
func CalculateRiskQuantity(riskBudget float64, stopDistance float64) float64 {
	if riskBudget <= 0 || stopDistance <= 0 {
		return 0
	}

	return riskBudget / stopDistance
}

// CalculateMaxQuantity returns the quantity whose notional at price equals maxNotional.
func CalculateMaxQuantity(maxNotional float64, price float64) float64 {
	if price <= 0 || maxNotional <= 0 {
		return 0
	}

	return maxNotional / price
}

// RoundToDecimalPrecision rounds the quantity down to the specified decimal precision.
func RoundToDecimalPrecision(quantity float64, decimalPrecision int) float64 {
	multiplier := math.Pow10(decimalPrecision)

	return math.Floor(quantity*multiplier) / multiplier
}

// IsFinitePositive reports whether v is a usable positive number.
func IsFinitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
