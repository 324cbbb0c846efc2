package clickhouse

import (
	"context"
	"fmt"
	"time"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/storage"
)

// TradeStore implements storage.TradeStore using ClickHouse.
type TradeStore struct {
	conn *Conn
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(conn *Conn) *TradeStore {
	return &TradeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// StoreTrade appends a trade. MergeTree does not enforce uniqueness, so a
// repeated id produces a second row.
func (s *TradeStore) StoreTrade(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("store_trade", time.Now())

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trades (
			id, timestamp, base_symbol, quote_symbol, base_mint, quote_mint,
			price, amount, side, total_value, dex_program, slot
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		t.ID, t.Timestamp.UTC(), t.BaseSymbol, t.QuoteSymbol, t.BaseMint, t.QuoteMint,
		t.Price, t.Amount, string(t.Side), t.TotalValue, t.DEXProgram, t.Slot,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetTrades returns trades for the pair in either order, most recent first.
func (s *TradeStore) GetTrades(ctx context.Context, baseSymbol, quoteSymbol string, limit int) ([]*domain.Trade, error) {
	if limit <= 0 {
		return []*domain.Trade{}, nil
	}
	defer observe("get_trades", time.Now())

	query := `
		SELECT id, timestamp, base_symbol, quote_symbol, base_mint, quote_mint,
			price, amount, side, total_value, dex_program, slot
		FROM trades
		WHERE (base_symbol = ? AND quote_symbol = ?)
		   OR (base_symbol = ? AND quote_symbol = ?)
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, baseSymbol, quoteSymbol, quoteSymbol, baseSymbol, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetOHLCV returns candles for the pair, ascending by bucket time.
func (s *TradeStore) GetOHLCV(ctx context.Context, baseSymbol, quoteSymbol string, interval domain.Interval) ([]domain.Candle, error) {
	defer observe("get_ohlcv", time.Now())

	// The interval literal comes from a closed set, never from input.
	query := fmt.Sprintf(`
		SELECT
			toInt64(toUnixTimestamp(toStartOfInterval(timestamp, INTERVAL %s))) AS time,
			argMin(price, timestamp) AS open,
			max(price) AS high,
			min(price) AS low,
			argMax(price, timestamp) AS close,
			sum(amount * price) AS volume
		FROM trades
		WHERE base_symbol = ? AND quote_symbol = ?
		GROUP BY time
		ORDER BY time ASC
	`, intervalSQL(interval))

	rows, err := s.conn.Query(ctx, query, baseSymbol, quoteSymbol)
	if err != nil {
		return nil, fmt.Errorf("query ohlcv: %w", err)
	}
	defer rows.Close()

	candles := []domain.Candle{}
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan ohlcv row: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ohlcv rows: %w", err)
	}
	return candles, nil
}

// Get24hStats summarizes the pair over the trailing 24 hours.
func (s *TradeStore) Get24hStats(ctx context.Context, baseSymbol, quoteSymbol string) (*domain.Stats24h, error) {
	defer observe("get_24h_stats", time.Now())

	query := `
		SELECT
			count() AS n,
			argMax(price, timestamp) AS current_price,
			max(price) AS high_24h,
			min(price) AS low_24h,
			sum(amount * price) AS volume_24h,
			argMin(price, timestamp) AS first_price
		FROM trades
		WHERE base_symbol = ? AND quote_symbol = ?
		  AND timestamp >= now() - INTERVAL 24 HOUR
	`

	var (
		n                                 uint64
		current, high, low, volume, first float64
	)
	err := s.conn.QueryRow(ctx, query, baseSymbol, quoteSymbol).
		Scan(&n, &current, &high, &low, &volume, &first)
	if err != nil {
		return nil, fmt.Errorf("query 24h stats: %w", err)
	}
	if n == 0 {
		return &domain.Stats24h{}, nil
	}

	stats := domain.NewStats24h(current, high, low, volume, first)
	return &stats, nil
}

// scanTrades scans multiple rows.
func scanTrades(rows chRows) ([]*domain.Trade, error) {
	trades := []*domain.Trade{}

	for rows.Next() {
		var t domain.Trade
		var side string

		err := rows.Scan(
			&t.ID, &t.Timestamp, &t.BaseSymbol, &t.QuoteSymbol, &t.BaseMint, &t.QuoteMint,
			&t.Price, &t.Amount, &side, &t.TotalValue, &t.DEXProgram, &t.Slot,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		t.Side = domain.Side(side)
		t.Timestamp = t.Timestamp.UTC()
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
