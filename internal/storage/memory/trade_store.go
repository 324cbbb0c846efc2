package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu     sync.RWMutex
	trades []*domain.Trade      // insertion order
	byID   map[string]struct{} // ids already stored
	now    func() time.Time
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		byID: make(map[string]struct{}),
		now:  time.Now,
	}
}

// WithClock sets the clock used for the trailing 24h window.
func (s *TradeStore) WithClock(now func() time.Time) *TradeStore {
	s.now = now
	return s
}

// StoreTrade appends a trade. A repeated id is ignored.
func (s *TradeStore) StoreTrade(_ context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[t.ID]; exists {
		return nil
	}

	cp := *t
	s.trades = append(s.trades, &cp)
	s.byID[t.ID] = struct{}{}
	return nil
}

// GetTrades returns trades for the pair in either order, most recent first.
func (s *TradeStore) GetTrades(_ context.Context, baseSymbol, quoteSymbol string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 {
		return []*domain.Trade{}, nil
	}

	s.mu.RLock()
	var result []*domain.Trade
	for _, t := range s.trades {
		if (t.BaseSymbol == baseSymbol && t.QuoteSymbol == quoteSymbol) ||
			(t.BaseSymbol == quoteSymbol && t.QuoteSymbol == baseSymbol) {
			cp := *t
			result = append(result, &cp)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if len(result) > limit {
		result = result[:limit]
	}
	if result == nil {
		result = []*domain.Trade{}
	}
	return result, nil
}

// GetOHLCV buckets trades for the pair in the given order.
func (s *TradeStore) GetOHLCV(_ context.Context, baseSymbol, quoteSymbol string, interval domain.Interval) ([]domain.Candle, error) {
	s.mu.RLock()
	var matched []*domain.Trade
	for _, t := range s.trades {
		if t.BaseSymbol == baseSymbol && t.QuoteSymbol == quoteSymbol {
			matched = append(matched, t)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	candles := []domain.Candle{}
	for _, t := range matched {
		bucket := interval.BucketStart(t.Timestamp)
		n := len(candles)
		if n == 0 || candles[n-1].Time != bucket {
			candles = append(candles, domain.Candle{
				Time:  bucket,
				Open:  t.Price,
				High:  t.Price,
				Low:   t.Price,
				Close: t.Price,
			})
			n++
		}
		c := &candles[n-1]
		if t.Price > c.High {
			c.High = t.Price
		}
		if t.Price < c.Low {
			c.Low = t.Price
		}
		c.Close = t.Price
		c.Volume += t.Amount * t.Price
	}
	return candles, nil
}

// Get24hStats summarizes the pair over the trailing 24 hours.
func (s *TradeStore) Get24hStats(_ context.Context, baseSymbol, quoteSymbol string) (*domain.Stats24h, error) {
	since := s.now().Add(-24 * time.Hour)

	s.mu.RLock()
	var window []*domain.Trade
	for _, t := range s.trades {
		if t.BaseSymbol == baseSymbol && t.QuoteSymbol == quoteSymbol && !t.Timestamp.Before(since) {
			window = append(window, t)
		}
	}
	s.mu.RUnlock()

	if len(window) == 0 {
		return &domain.Stats24h{}, nil
	}

	sort.SliceStable(window, func(i, j int) bool {
		return window[i].Timestamp.Before(window[j].Timestamp)
	})

	high, low := window[0].Price, window[0].Price
	var volume float64
	for _, t := range window {
		if t.Price > high {
			high = t.Price
		}
		if t.Price < low {
			low = t.Price
		}
		volume += t.Amount * t.Price
	}

	stats := domain.NewStats24h(window[len(window)-1].Price, high, low, volume, window[0].Price)
	return &stats, nil
}

// Count returns the number of stored trades.
func (s *TradeStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}

var _ storage.TradeStore = (*TradeStore)(nil)
