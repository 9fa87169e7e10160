package games

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Payout returns floor(bet * multiplier)
func Payout(bet int64, multiplier decimal.Decimal) int64 {
	return decimal.NewFromInt(bet).Mul(multiplier).Floor().IntPart()
}

// UniformMultiplier draws uniformly from [low, high] and rounds to places decimals
func UniformMultiplier(r Random, low, high decimal.Decimal, places int32) decimal.Decimal {
	span := high.Sub(low)
	return low.Add(span.Mul(decimal.NewFromFloat(r.Float64()))).Round(places)
}

// ParseMultipliers parses a comma separated list such as "0.5,0.5,1.5"
func ParseMultipliers(raw string) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := decimal.NewFromString(part)
		if err != nil {
			return nil, fmt.Errorf("invalid multiplier %q: %w", part, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func mustDecimals(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.RequireFromString(v)
	}
	return out
}
