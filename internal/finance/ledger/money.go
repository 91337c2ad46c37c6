package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/malimina/internal/shared"
)

// MoneyPlaces is the number of decimal places kept for every amount.
const MoneyPlaces = 2

// Round2 rounds to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// ValidateAmount rejects non-positive amounts and sub-cent precision.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.Validation("amount must be positive, got %s", amount.String())
	}
	if !amount.Equal(Round2(amount)) {
		return shared.Validation("amount %s has more than %d decimal places", amount.String(), MoneyPlaces)
	}
	return nil
}
