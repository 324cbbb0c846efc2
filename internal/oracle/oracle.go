// Package oracle looks up token prices from an external price service.
package oracle

import (
	"context"
	"errors"
)

var (
	// ErrPriceNotFound is returned when the oracle has no price for a mint.
	ErrPriceNotFound = errors.New("price not found")

	// ErrZeroQuotePrice is returned when a ratio cannot be formed because the
	// quote token is priced at zero.
	ErrZeroQuotePrice = errors.New("quote token price is zero")
)

// PriceSource returns the price of base denominated in quote.
type PriceSource interface {
	Price(ctx context.Context, baseMint, quoteMint string) (float64, error)
}
