package pricing_test

import (
	"testing"

	"ms-inventory/internal/models"
	"ms-inventory/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tier(price, fee, tax string) models.TicketTier {
	return models.TicketTier{
		ID:         "tier-1",
		Price:      decimal.RequireFromString(price),
		ServiceFee: decimal.RequireFromString(fee),
		TaxRate:    decimal.RequireFromString(tax),
	}
}

func TestQuote(t *testing.T) {
	calc := pricing.NewCalculator(pricing.DefaultPlaces)

	tests := []struct {
		name  string
		tier  models.TicketTier
		qty   int
		total string
	}{
		{"price only", tier("50.00", "0", "0"), 2, "100.00"},
		{"fee and tax", tier("49.99", "2.50", "0.0825"), 3, "169.84"},
		{"rounds once at the end", tier("0.333", "0", "0"), 3, "1.00"},
		{"free tier", tier("0", "0", "0.2"), 4, "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := calc.Quote(tt.tier, tt.qty)
			require.NoError(t, err)
			assert.Equal(t, tt.total, q.Total.StringFixed(2))
		})
	}
}

func TestQuote_InvalidInput(t *testing.T) {
	calc := pricing.NewCalculator(pricing.DefaultPlaces)

	_, err := calc.Quote(tier("10", "0", "0"), 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = calc.Quote(tier("-1", "0", "0"), 1)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestUnitPrice(t *testing.T) {
	calc := pricing.NewCalculator(pricing.DefaultPlaces)
	q, err := calc.Quote(tier("10.00", "1.00", "0.10"), 2)
	require.NoError(t, err)
	assert.Equal(t, "24.00", q.Total.StringFixed(2))
	assert.Equal(t, "12.00", calc.UnitPrice(q.Total, q.Quantity).StringFixed(2))
	assert.Equal(t, "3.33", calc.UnitPrice(decimal.RequireFromString("10.00"), 3).StringFixed(2))
	assert.True(t, calc.UnitPrice(q.Total, 0).IsZero())
}
