// Package pricing computes what a buyer pays for a quantity of a tier.
package pricing

import (
	"fmt"

	"ms-inventory/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultPlaces is the number of fractional digits totals are rounded to.
const DefaultPlaces int32 = 2

type Quote struct {
	TierID     string          `json:"tier_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	ServiceFee decimal.Decimal `json:"service_fee"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
}

// Calculator quotes totals rounded to Places fractional digits.
type Calculator struct {
	Places int32
}

func NewCalculator(places int32) *Calculator {
	if places < 0 {
		places = DefaultPlaces
	}
	return &Calculator{Places: places}
}

// Quote prices qty units of tier: price*qty plus fee*qty plus tax on the
// subtotal. Intermediate values stay exact; only the parts and the total
// are rounded, half away from zero.
func (c *Calculator) Quote(tier models.TicketTier, qty int) (Quote, error) {
	if qty <= 0 {
		return Quote{}, fmt.Errorf("quote %d units: %w", qty, models.ErrInvalidInput)
	}
	if tier.Price.IsNegative() || tier.ServiceFee.IsNegative() || tier.TaxRate.IsNegative() {
		return Quote{}, fmt.Errorf("tier %s has negative pricing: %w", tier.ID, models.ErrInvalidInput)
	}

	n := decimal.NewFromInt(int64(qty))
	subtotal := tier.Price.Mul(n)
	fee := tier.ServiceFee.Mul(n)
	tax := subtotal.Mul(tier.TaxRate)
	total := subtotal.Add(fee).Add(tax)

	return Quote{
		TierID:     tier.ID,
		Quantity:   qty,
		UnitPrice:  tier.Price,
		Subtotal:   subtotal.Round(c.Places),
		ServiceFee: fee.Round(c.Places),
		Tax:        tax.Round(c.Places),
		Total:      total.Round(c.Places),
	}, nil
}

// UnitPrice is what one of qty tickets bought for total is recorded at: the
// total split evenly, rounded.
func (c *Calculator) UnitPrice(total decimal.Decimal, qty int) decimal.Decimal {
	if qty <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(qty))).Round(c.Places)
}
