// Package settlement splits a booking price between the platform and the cameraman.
package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Split is the result of settling a price. Commission + Earnings always equals the total.
type Split struct {
	Total      int64
	Commission int64
	Earnings   int64
}

// Settle rounds the commission to the nearest whole currency unit (half up) and gives the
// remainder to the cameraman, so the two halves never drift from the total.
func Settle(total int64, ratePercent decimal.Decimal) (Split, error) {
	if total < 0 {
		return Split{}, fmt.Errorf("total must not be negative, got %d", total)
	}

	if ratePercent.IsNegative() || ratePercent.GreaterThan(hundred) {
		return Split{}, fmt.Errorf("commission rate must be between 0 and 100, got %s", ratePercent)
	}

	// Round is half away from zero, which is half up for non-negative amounts.
	commission := decimal.NewFromInt(total).Mul(ratePercent).Div(hundred).Round(0).IntPart()

	return Split{
		Total:      total,
		Commission: commission,
		Earnings:   total - commission,
	}, nil
}
