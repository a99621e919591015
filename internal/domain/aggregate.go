package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TotalValue computes the portfolio value of one exchange account in the
// given base currency: the sum over currencies of (available + reserved)
// multiplied by the last price of the currency/base pair. Base-currency
// cash needs no conversion, so for the base only the reserved component
// counts. Currencies with no known price contribute zero; their codes are
// returned sorted so callers can flag them.
func TotalValue(balances Balances, prices map[string]decimal.Decimal, base string) (decimal.Decimal, []string) {
	base = CanonicalCurrency(base)
	total := decimal.Zero
	var missing []string

	for currency, bal := range balances {
		currency = CanonicalCurrency(currency)

		if currency == base {
			total = total.Add(bal.Reserved)
			continue
		}

		last, ok := prices[CanonicalSymbol(currency+base)]
		if !ok {
			missing = append(missing, currency)
			continue
		}
		weight := bal.Available.Add(bal.Reserved)
		total = total.Add(weight.Mul(last))
	}

	sort.Strings(missing)
	return total, missing
}
