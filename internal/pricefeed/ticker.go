package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/oracle"
)

// DefaultInterval is the oracle polling period.
const DefaultInterval = 5 * time.Second

// PairSelector exposes the pair clients currently want priced.
type PairSelector interface {
	SelectedPair() string
}

// Broadcaster delivers trades to connected clients.
type Broadcaster interface {
	BroadcastTrade(t *domain.Trade) (int, error)
}

// TickerOptions contains configuration for creating a Ticker.
type TickerOptions struct {
	Selector    PairSelector
	Source      oracle.PriceSource
	Broadcaster Broadcaster
	Book        *Book // optional, receives every fetched price
	Interval    time.Duration
	Logger      *log.Logger
	Now         func() time.Time
}

// Ticker periodically prices the selected pair and broadcasts the result
// as a price-only pseudo-trade. A failed lookup skips the tick.
type Ticker struct {
	selector    PairSelector
	source      oracle.PriceSource
	broadcaster Broadcaster
	book        *Book
	interval    time.Duration
	logger      *log.Logger
	now         func() time.Time
}

// NewTicker creates a new price ticker.
func NewTicker(opts TickerOptions) *Ticker {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Ticker{
		selector:    opts.Selector,
		source:      opts.Source,
		broadcaster: opts.Broadcaster,
		book:        opts.Book,
		interval:    interval,
		logger:      logger,
		now:         now,
	}
}

// Run ticks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) error {
	if t.selector == nil || t.source == nil || t.broadcaster == nil {
		return errors.New("ticker: selector, source and broadcaster are required")
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Printf("Price ticker started, interval: %v", t.interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := t.Tick(ctx); err != nil && ctx.Err() == nil {
				t.logger.Printf("price tick skipped: %v", err)
			}
		}
	}
}

// Tick prices the currently selected pair once and broadcasts it.
func (t *Ticker) Tick(ctx context.Context) (*domain.Trade, error) {
	pair := t.selector.SelectedPair()

	base, quote, err := domain.ParsePair(pair)
	if err != nil {
		return nil, err
	}
	baseMint, quoteMint, err := domain.PairMints(pair)
	if err != nil {
		return nil, err
	}

	price, err := t.source.Price(ctx, baseMint, quoteMint)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", pair, err)
	}
	if !domain.ValidPrice(price) {
		return nil, fmt.Errorf("price %s: invalid value %v", pair, price)
	}

	if t.book != nil {
		t.book.Record(ctx, pair, price)
	}

	update := domain.NewPriceUpdate(base, quote, price, t.now())
	n, err := t.broadcaster.BroadcastTrade(&update)
	if err != nil {
		return nil, err
	}
	t.logger.Printf("Broadcast %s @ %.6f to %d clients", pair, price, n)
	return &update, nil
}
