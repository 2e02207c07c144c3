package chain

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// FixedDecimals is the fixed-point scale used for amounts and prices passed
// to the trading contract.
const FixedDecimals = 6

// ToFixed encodes x as floor(x * 10^6) with the product taken in float64, so
// 1.005 encodes as 1004999 exactly as the dashboard computes it. Negative and
// non-finite values are rejected.
func ToFixed(x float64) (*big.Int, error) {
	if x < 0 {
		return nil, fmt.Errorf("chain: cannot encode negative value %v", x)
	}
	scaled := math.Floor(x * math.Pow10(FixedDecimals))
	if math.IsNaN(scaled) || math.IsInf(scaled, 0) {
		return nil, fmt.Errorf("chain: cannot encode non-finite value %v", x)
	}
	return decimal.NewFromFloat(scaled).BigInt(), nil
}

// FromFixed decodes a fixed-point integer back to a decimal.
func FromFixed(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v, -FixedDecimals)
}
