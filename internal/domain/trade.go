package domain

import (
	"fmt"
	"math"
	"time"
)

// Side is the direction of a trade relative to its base token.
type Side string

// Trade side constants.
const (
	SideBuy   Side = "buy"
	SideSell  Side = "sell"
	SidePrice Side = "price" // oracle-only update, never backed by a swap
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a known value.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell || s == SidePrice
}

// Trade is the normalized record produced by ingestion and consumed by
// storage and broadcast. Trades are never mutated after construction; use
// WithPrice to derive a corrected copy.
type Trade struct {
	ID          string    `json:"id"`        // transaction signature or price_<unix>
	Timestamp   time.Time `json:"timestamp"` // block time or wall clock for pseudo-trades
	BaseSymbol  string    `json:"base_symbol"`
	QuoteSymbol string    `json:"quote_symbol"`
	BaseMint    string    `json:"base_mint,omitempty"`
	QuoteMint   string    `json:"quote_mint,omitempty"`
	Price       float64   `json:"price"`  // quote units per base unit
	Amount      float64   `json:"amount"` // base units moved, 0 for SidePrice
	Side        Side      `json:"side"`
	TotalValue  float64   `json:"total_value"`
	DEXProgram  string    `json:"dex_program,omitempty"`
	Slot        uint64    `json:"slot,omitempty"`
}

// Pair returns the "BASE/QUOTE" form of the trade's pair.
func (t *Trade) Pair() string {
	return FormatPair(t.BaseSymbol, t.QuoteSymbol)
}

// IsPriceUpdate reports whether the trade is an oracle pseudo-trade.
func (t *Trade) IsPriceUpdate() bool {
	return t.Side == SidePrice
}

// HasValidPrice reports whether Price is finite and strictly positive.
func (t *Trade) HasValidPrice() bool {
	return ValidPrice(t.Price)
}

// WithPrice returns a copy of the trade with price and total value replaced.
func (t Trade) WithPrice(price float64) Trade {
	t.Price = price
	t.TotalValue = price * t.Amount
	return t
}

// Validate checks the trade invariants required before persistence.
func (t *Trade) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("trade id is empty")
	}
	if !t.Side.IsValid() {
		return fmt.Errorf("trade %s: unknown side %q", t.ID, t.Side)
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price < 0 {
		return fmt.Errorf("trade %s: invalid price %v", t.ID, t.Price)
	}
	if t.Side == SidePrice {
		if t.Amount != 0 {
			return fmt.Errorf("trade %s: price update with amount %v", t.ID, t.Amount)
		}
		return nil
	}
	if !(t.Amount > 0) {
		return fmt.Errorf("trade %s: non-positive amount %v", t.ID, t.Amount)
	}
	return nil
}

// NewPriceUpdate builds the pseudo-trade broadcast by the price ticker.
func NewPriceUpdate(baseSymbol, quoteSymbol string, price float64, now time.Time) Trade {
	return Trade{
		ID:          fmt.Sprintf("price_%d", now.Unix()),
		Timestamp:   now.UTC(),
		BaseSymbol:  baseSymbol,
		QuoteSymbol: quoteSymbol,
		Price:       price,
		Amount:      0,
		Side:        SidePrice,
	}
}

// ValidPrice reports whether p can be stored as a trade price.
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
