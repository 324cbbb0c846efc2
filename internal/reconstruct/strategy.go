// Package reconstruct turns fetched transactions into normalized trades.
package reconstruct

import (
	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/solana"
)

// Strategy reconstructs a trade from a confirmed transaction.
// It returns false when the transaction does not describe a trade worth keeping;
// rejection is expected and frequent, so it carries no error.
type Strategy interface {
	Reconstruct(signature string, slot uint64, tx *solana.Transaction) (*domain.Trade, bool)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(signature string, slot uint64, tx *solana.Transaction) (*domain.Trade, bool)

// Reconstruct calls f.
func (f StrategyFunc) Reconstruct(signature string, slot uint64, tx *solana.Transaction) (*domain.Trade, bool) {
	return f(signature, slot, tx)
}
