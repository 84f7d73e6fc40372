package receipt

import (
	"github.com/shopspring/decimal"

	"github.com/ticketsync/ticketsync/pkg/models"
)

// ParseAmount parses a normalized amount. ok is false for nil or non-numeric text.
func ParseAmount(s *string) (decimal.Decimal, bool) {
	if s == nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// SumTotals adds up the line totals that parse as decimals and reports how
// many did not.
func SumTotals(lines []*models.ProductLine) (sum decimal.Decimal, skipped int) {
	sum = decimal.Zero
	for _, line := range lines {
		d, ok := ParseAmount(line.Total)
		if !ok {
			skipped++
			continue
		}
		sum = sum.Add(d)
	}
	return sum, skipped
}
