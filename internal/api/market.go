package api

import (
	"net/http"
	"strconv"

	"dex-trade-stream/internal/domain"
)

// Trade query limits.
const (
	DefaultTradeLimit = 100
	MaxTradeLimit     = 1000
)

// pairParam reads ?pair=, defaulting to domain.DefaultPair. On a malformed
// pair it writes the 400 response and returns ok=false.
func (s *Server) pairParam(w http.ResponseWriter, r *http.Request) (base, quote string, ok bool) {
	pair := r.URL.Query().Get("pair")
	if pair == "" {
		pair = domain.DefaultPair
	}

	base, quote, err := domain.ParsePair(pair)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid pair format", "Pair must be in format BASE/QUOTE")
		return "", "", false
	}
	return base, quote, true
}

// limitParam reads ?limit=. Missing or unparsable values use the default;
// values above MaxTradeLimit are capped.
func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return DefaultTradeLimit
	}
	if limit > MaxTradeLimit {
		return MaxTradeLimit
	}
	return limit
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	base, quote, ok := s.pairParam(w, r)
	if !ok {
		return
	}

	trades, err := s.trades.GetTrades(r.Context(), base, quote, limitParam(r))
	if err != nil {
		s.logger.Printf("query trades %s/%s: %v", base, quote, err)
		s.writeError(w, http.StatusInternalServerError, "Failed to query trades", err.Error())
		return
	}
	if trades == nil {
		trades = []*domain.Trade{}
	}

	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleOHLCV(w http.ResponseWriter, r *http.Request) {
	base, quote, ok := s.pairParam(w, r)
	if !ok {
		return
	}
	interval := domain.ParseInterval(r.URL.Query().Get("interval"))

	candles, err := s.trades.GetOHLCV(r.Context(), base, quote, interval)
	if err != nil {
		s.logger.Printf("query ohlcv %s/%s %s: %v", base, quote, interval, err)
		s.writeError(w, http.StatusInternalServerError, "Failed to query OHLCV data", err.Error())
		return
	}
	if candles == nil {
		candles = []domain.Candle{}
	}

	s.writeJSON(w, http.StatusOK, candles)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	base, quote, ok := s.pairParam(w, r)
	if !ok {
		return
	}

	stats, err := s.trades.Get24hStats(r.Context(), base, quote)
	if err != nil {
		s.logger.Printf("query stats %s/%s: %v", base, quote, err)
		s.writeError(w, http.StatusInternalServerError, "Failed to query stats", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}
