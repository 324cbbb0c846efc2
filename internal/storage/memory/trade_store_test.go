package memory

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/storage"
)

func trade(id, base, quote string, ts time.Time, price, amount float64) *domain.Trade {
	return &domain.Trade{
		ID:          id,
		Timestamp:   ts,
		BaseSymbol:  base,
		QuoteSymbol: quote,
		Price:       price,
		Amount:      amount,
		Side:        domain.SideBuy,
		TotalValue:  price * amount,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTradeStore_StoreAndGetTrades(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	trades := []*domain.Trade{
		trade("a", "SOL", "USDC", base, 100, 1),
		trade("b", "USDC", "SOL", base.Add(time.Second), 0.01, 50),
		trade("c", "SOL", "USDC", base.Add(2*time.Second), 101, 2),
		trade("d", "BONK", "SOL", base.Add(3*time.Second), 0.0000001, 1e6),
	}
	for _, tr := range trades {
		if err := store.StoreTrade(ctx, tr); err != nil {
			t.Fatalf("StoreTrade failed: %v", err)
		}
	}

	result, err := store.GetTrades(ctx, "SOL", "USDC", 10)
	if err != nil {
		t.Fatalf("GetTrades failed: %v", err)
	}

	want := []string{"c", "b", "a"}
	if len(result) != len(want) {
		t.Fatalf("Expected %d trades, got %d", len(want), len(result))
	}
	for i, id := range want {
		if result[i].ID != id {
			t.Errorf("result[%d].ID = %s, want %s", i, result[i].ID, id)
		}
	}

	limited, err := store.GetTrades(ctx, "SOL", "USDC", 2)
	if err != nil {
		t.Fatalf("GetTrades failed: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "c" {
		t.Errorf("limit not applied to most recent trades: %+v", limited)
	}
}

func TestTradeStore_DuplicateIgnored(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := store.StoreTrade(ctx, trade("sig1", "SOL", "USDC", ts, 100, 1)); err != nil {
		t.Fatalf("StoreTrade failed: %v", err)
	}
	if err := store.StoreTrade(ctx, trade("sig1", "SOL", "USDC", ts, 200, 1)); err != nil {
		t.Fatalf("duplicate StoreTrade returned error: %v", err)
	}

	if store.Count() != 1 {
		t.Errorf("Expected 1 trade, got %d", store.Count())
	}
}

func TestTradeStore_InvalidInput(t *testing.T) {
	store := NewTradeStore()

	if err := store.StoreTrade(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if err := store.StoreTrade(context.Background(), &domain.Trade{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestTradeStore_ReturnsCopies(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()
	original := trade("sig1", "SOL", "USDC", time.Now(), 100, 1)

	if err := store.StoreTrade(ctx, original); err != nil {
		t.Fatalf("StoreTrade failed: %v", err)
	}
	original.Price = 1

	result, _ := store.GetTrades(ctx, "SOL", "USDC", 1)
	result[0].Price = 2

	again, _ := store.GetTrades(ctx, "SOL", "USDC", 1)
	if again[0].Price != 100 {
		t.Errorf("stored trade was mutated: price %f", again[0].Price)
	}
}

func TestTradeStore_GetOHLCV(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()
	minute := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	// Inserted out of order to check open/close follow timestamps.
	trades := []*domain.Trade{
		trade("t2", "SOL", "USDC", minute.Add(30*time.Second), 110, 1),
		trade("t1", "SOL", "USDC", minute.Add(10*time.Second), 100, 2),
		trade("t3", "SOL", "USDC", minute.Add(50*time.Second), 90, 1),
		trade("t4", "SOL", "USDC", minute.Add(70*time.Second), 105, 4),
		trade("rev", "USDC", "SOL", minute.Add(20*time.Second), 0.01, 1000),
	}
	for _, tr := range trades {
		if err := store.StoreTrade(ctx, tr); err != nil {
			t.Fatalf("StoreTrade failed: %v", err)
		}
	}

	candles, err := store.GetOHLCV(ctx, "SOL", "USDC", domain.Interval1m)
	if err != nil {
		t.Fatalf("GetOHLCV failed: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(candles))
	}

	first := candles[0]
	if first.Time != minute.Unix() {
		t.Errorf("first bucket = %d, want %d", first.Time, minute.Unix())
	}
	if first.Open != 100 || first.High != 110 || first.Low != 90 || first.Close != 90 {
		t.Errorf("unexpected first candle: %+v", first)
	}
	if !almostEqual(first.Volume, 100*2+110*1+90*1) {
		t.Errorf("first volume = %f, want 400", first.Volume)
	}

	second := candles[1]
	if second.Time != minute.Add(time.Minute).Unix() {
		t.Errorf("second bucket = %d, want %d", second.Time, minute.Add(time.Minute).Unix())
	}
	if second.Open != 105 || second.Close != 105 || !almostEqual(second.Volume, 420) {
		t.Errorf("unexpected second candle: %+v", second)
	}
	if candles[0].Time >= candles[1].Time {
		t.Error("candles not ascending")
	}
}

func TestTradeStore_GetOHLCV_Empty(t *testing.T) {
	store := NewTradeStore()

	candles, err := store.GetOHLCV(context.Background(), "SOL", "USDC", domain.Interval1h)
	if err != nil {
		t.Fatalf("GetOHLCV failed: %v", err)
	}
	if candles == nil || len(candles) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v", candles)
	}
}

func TestTradeStore_Get24hStats(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	store := NewTradeStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	trades := []*domain.Trade{
		trade("old", "SOL", "USDC", now.Add(-25*time.Hour), 10, 1),
		trade("t1", "SOL", "USDC", now.Add(-20*time.Hour), 100, 1),
		trade("t2", "SOL", "USDC", now.Add(-10*time.Hour), 130, 2),
		trade("t3", "SOL", "USDC", now.Add(-time.Hour), 120, 1),
		trade("rev", "USDC", "SOL", now.Add(-time.Hour), 0.008, 10),
	}
	for _, tr := range trades {
		if err := store.StoreTrade(ctx, tr); err != nil {
			t.Fatalf("StoreTrade failed: %v", err)
		}
	}

	stats, err := store.Get24hStats(ctx, "SOL", "USDC")
	if err != nil {
		t.Fatalf("Get24hStats failed: %v", err)
	}

	if stats.CurrentPrice != 120 {
		t.Errorf("CurrentPrice = %f, want 120", stats.CurrentPrice)
	}
	if stats.High24h != 130 || stats.Low24h != 100 {
		t.Errorf("High/Low = %f/%f, want 130/100", stats.High24h, stats.Low24h)
	}
	if !almostEqual(stats.Volume24h, 100+260+120) {
		t.Errorf("Volume24h = %f, want 480", stats.Volume24h)
	}
	if !almostEqual(stats.Change24h, 20) || !almostEqual(stats.ChangePercent24h, 20) {
		t.Errorf("Change = %f (%f%%), want 20 (20%%)", stats.Change24h, stats.ChangePercent24h)
	}
}

func TestTradeStore_Get24hStats_Empty(t *testing.T) {
	store := NewTradeStore()

	stats, err := store.Get24hStats(context.Background(), "SOL", "USDC")
	if err != nil {
		t.Fatalf("Get24hStats failed: %v", err)
	}
	if *stats != (domain.Stats24h{}) {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
}
