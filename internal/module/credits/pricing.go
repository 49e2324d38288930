package credits

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// PriceTable maps operation types to their flat credit price. Prices are
// fixed per operation category, not estimated per token, so the cost of a
// generation is known before it runs.
type PriceTable struct {
	prices map[string]decimal.Decimal
}

// NewPriceTable builds a price table from decimal strings, typically the
// credits.operation_prices config section.
func NewPriceTable(raw map[string]string) (*PriceTable, error) {
	prices := make(map[string]decimal.Decimal, len(raw))
	for op, s := range raw {
		price, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("parse price for %q: %w", op, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("price for %q must be positive, got %s", op, price)
		}
		prices[op] = price
	}
	return &PriceTable{prices: prices}, nil
}

// Price returns the flat price for an operation type.
func (t *PriceTable) Price(operationType string) (decimal.Decimal, error) {
	price, ok := t.prices[operationType]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownOperation, operationType)
	}
	return price, nil
}

// Operations returns the known operation types in stable order.
func (t *PriceTable) Operations() []string {
	ops := make([]string, 0, len(t.prices))
	for op := range t.prices {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
