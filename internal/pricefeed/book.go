// Package pricefeed polls the price oracle for the selected pair and keeps
// the last known price of every pair it has seen.
package pricefeed

import (
	"context"
	"log"
	"sync"
	"time"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/oracle"
)

// Book defaults.
const (
	DefaultFallbackPrice = 150.0
	DefaultMaxAge        = time.Minute
	DefaultLookupTimeout = 3 * time.Second
)

// PriceCache persists last known prices outside the process.
type PriceCache interface {
	SetPrice(ctx context.Context, pair string, price float64) error
	GetPrice(ctx context.Context, pair string) (float64, bool, error)
}

// BookOptions contains configuration for creating a Book.
type BookOptions struct {
	Source oracle.PriceSource // optional on-demand lookup
	Cache  PriceCache         // optional
	// Fallback is used before any price is known. Default: DefaultFallbackPrice.
	Fallback float64
	// MaxAge after which a known price is refreshed on demand. Default: DefaultMaxAge.
	MaxAge time.Duration
	// LookupTimeout bounds each on-demand oracle call.
	LookupTimeout time.Duration
	Logger        *log.Logger
	Now           func() time.Time
}

type bookEntry struct {
	price float64
	at    time.Time
}

// Book holds the last known oracle price per pair.
type Book struct {
	mu      sync.RWMutex
	entries map[string]bookEntry

	source        oracle.PriceSource
	cache         PriceCache
	fallback      float64
	maxAge        time.Duration
	lookupTimeout time.Duration
	logger        *log.Logger
	now           func() time.Time
}

// NewBook creates a new price book.
func NewBook(opts BookOptions) *Book {
	fallback := opts.Fallback
	if !domain.ValidPrice(fallback) {
		fallback = DefaultFallbackPrice
	}

	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	lookupTimeout := opts.LookupTimeout
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultLookupTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Book{
		entries:       make(map[string]bookEntry),
		source:        opts.Source,
		cache:         opts.Cache,
		fallback:      fallback,
		maxAge:        maxAge,
		lookupTimeout: lookupTimeout,
		logger:        logger,
		now:           now,
	}
}

// Record stores a fresh oracle price. Invalid prices are ignored.
func (b *Book) Record(ctx context.Context, pair string, price float64) {
	if !domain.ValidPrice(price) {
		return
	}

	b.mu.Lock()
	b.entries[pair] = bookEntry{price: price, at: b.now()}
	b.mu.Unlock()

	if b.cache != nil {
		if err := b.cache.SetPrice(ctx, pair, price); err != nil {
			b.logger.Printf("cache price %s: %v", pair, err)
		}
	}
}

// Last returns the best known price for pair. Resolution order: a fresh
// in-memory price, an on-demand oracle lookup, a stale in-memory price, the
// external cache, the default pair's price, then the fallback constant.
func (b *Book) Last(ctx context.Context, pair string) float64 {
	entry, ok := b.get(pair)
	if ok && b.now().Sub(entry.at) < b.maxAge {
		return entry.price
	}

	if price, err := b.lookup(ctx, pair); err == nil {
		b.Record(ctx, pair, price)
		return price
	}

	if ok {
		return entry.price
	}

	if b.cache != nil {
		price, found, err := b.cache.GetPrice(ctx, pair)
		if err != nil {
			b.logger.Printf("read cached price %s: %v", pair, err)
		} else if found && domain.ValidPrice(price) {
			b.mu.Lock()
			b.entries[pair] = bookEntry{price: price, at: time.Time{}}
			b.mu.Unlock()
			return price
		}
	}

	if pair != domain.DefaultPair {
		if def, ok := b.get(domain.DefaultPair); ok {
			return def.price
		}
	}

	return b.fallback
}

// Fallback returns the price used when nothing else is known.
func (b *Book) Fallback() float64 {
	return b.fallback
}

func (b *Book) get(pair string) (bookEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[pair]
	return e, ok
}

func (b *Book) lookup(ctx context.Context, pair string) (float64, error) {
	if b.source == nil {
		return 0, oracle.ErrPriceNotFound
	}
	baseMint, quoteMint, err := domain.PairMints(pair)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.lookupTimeout)
	defer cancel()

	price, err := b.source.Price(ctx, baseMint, quoteMint)
	if err != nil {
		b.logger.Printf("price lookup %s: %v", pair, err)
		return 0, err
	}
	if !domain.ValidPrice(price) {
		return 0, oracle.ErrPriceNotFound
	}
	return price, nil
}
