package storage

import (
	"context"
	"time"

	"dex-trade-stream/internal/domain"
)

// TradeStore provides access to trades storage.
type TradeStore interface {
	// StoreTrade appends a trade. Duplicate ids are tolerated; consumers
	// deduplicate by id.
	StoreTrade(ctx context.Context, t *domain.Trade) error

	// GetTrades returns up to limit trades for the pair in either base/quote
	// order, most recent first. Stores that do not retain mint, venue or slot
	// detail return those fields zero-valued.
	GetTrades(ctx context.Context, baseSymbol, quoteSymbol string, limit int) ([]*domain.Trade, error)

	// GetOHLCV returns candles for the pair in the given base/quote order,
	// ascending by bucket time. Open and close are the first and last price
	// by time, volume is the sum of amount * price.
	GetOHLCV(ctx context.Context, baseSymbol, quoteSymbol string, interval domain.Interval) ([]domain.Candle, error)

	// Get24hStats summarizes the trailing 24 hours. Returns a zero value when
	// no trades exist in the window.
	Get24hStats(ctx context.Context, baseSymbol, quoteSymbol string) (*domain.Stats24h, error)
}

// SessionStore provides access to authenticated wallet sessions.
type SessionStore interface {
	// StoreSession records a token issued to userKey.
	StoreSession(ctx context.Context, userKey, token string, expiresAt time.Time) error

	// ValidateSession reports whether token was issued to userKey and is unexpired.
	ValidateSession(ctx context.Context, userKey, token string) (bool, error)

	// CleanupExpiredSessions removes sessions past their expiry.
	CleanupExpiredSessions(ctx context.Context) error
}

// Store is the complete storage contract.
type Store interface {
	TradeStore
	SessionStore
}

// Composite combines independent trade and session backends into a Store.
type Composite struct {
	TradeStore
	SessionStore
}

var _ Store = Composite{}
