package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-trade-stream/internal/domain"
)

// priceServer serves Price API v3 responses from a fixed table.
func priceServer(t *testing.T, prices map[string]float64, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		id := r.URL.Query().Get("ids")
		resp := map[string]interface{}{}
		if p, ok := prices[id]; ok {
			resp[id] = map[string]interface{}{
				"usdPrice":       p,
				"blockId":        348004023,
				"decimals":       9,
				"priceChange24h": 1.5,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJupiterClient_USDCQuoteUsesDirectPrice(t *testing.T) {
	var hits atomic.Int32
	srv := priceServer(t, map[string]float64{domain.MintSOL: 152.25}, &hits)

	c := NewJupiterClient(WithPriceURL(srv.URL), WithQuoteURL(""))
	price, err := c.Price(context.Background(), domain.MintSOL, domain.MintUSDC)
	require.NoError(t, err)
	assert.Equal(t, 152.25, price)
	assert.Equal(t, int32(1), hits.Load())
}

func TestJupiterClient_RatioPrice(t *testing.T) {
	srv := priceServer(t, map[string]float64{
		domain.MintJUP: 0.5,
		domain.MintSOL: 150,
	}, nil)

	c := NewJupiterClient(WithPriceURL(srv.URL), WithQuoteURL(""))
	price, err := c.Price(context.Background(), domain.MintSOL, domain.MintJUP)
	require.NoError(t, err)
	assert.InDelta(t, 300.0, price, 1e-9)
}

func TestJupiterClient_ZeroQuotePrice(t *testing.T) {
	srv := priceServer(t, map[string]float64{
		domain.MintSOL:  150,
		domain.MintUSDT: 0,
	}, nil)

	c := NewJupiterClient(WithPriceURL(srv.URL), WithQuoteURL(""))
	_, err := c.Price(context.Background(), domain.MintSOL, domain.MintUSDT)
	assert.ErrorIs(t, err, ErrZeroQuotePrice)
}

func TestJupiterClient_NotFound(t *testing.T) {
	srv := priceServer(t, map[string]float64{}, nil)

	c := NewJupiterClient(WithPriceURL(srv.URL), WithQuoteURL(""))
	_, err := c.Price(context.Background(), domain.MintBONK, domain.MintUSDC)
	assert.ErrorIs(t, err, ErrPriceNotFound)
}

func TestJupiterClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewJupiterClient(WithPriceURL(srv.URL), WithQuoteURL(""))
	_, err := c.Price(context.Background(), domain.MintSOL, domain.MintUSDC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestJupiterClient_QuoteFallback(t *testing.T) {
	prices := priceServer(t, map[string]float64{}, nil)

	quotes := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, domain.MintWIF, q.Get("inputMint"))
		assert.Equal(t, domain.MintUSDC, q.Get("outputMint"))
		assert.Equal(t, "1000000", q.Get("amount"))
		assert.Equal(t, "50", q.Get("slippageBps"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"inputMint":            q.Get("inputMint"),
			"inAmount":             "1000000",
			"outputMint":           q.Get("outputMint"),
			"outAmount":            "2150000",
			"otherAmountThreshold": "2139250",
			"swapMode":             "ExactIn",
			"slippageBps":          50,
			"priceImpactPct":       "0",
			"routePlan": []map[string]interface{}{
				{"percent": 100, "swapInfo": map[string]interface{}{"label": "Meteora", "ammKey": "k"}},
			},
		})
	}))
	defer quotes.Close()

	c := NewJupiterClient(WithPriceURL(prices.URL), WithQuoteURL(quotes.URL))
	price, err := c.Price(context.Background(), domain.MintWIF, domain.MintUSDC)
	require.NoError(t, err)
	assert.InDelta(t, 2.15, price, 1e-9)
}

func TestJupiterClient_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("slippageBps"))
		w.Write([]byte(`{"inputMint":"a","inAmount":"5","outputMint":"b","outAmount":"7","swapMode":"ExactIn","slippageBps":100,"routePlan":[]}`))
	}))
	defer srv.Close()

	c := NewJupiterClient(WithQuoteURL(srv.URL))
	resp, err := c.Quote(context.Background(), QuoteRequest{InputMint: "a", OutputMint: "b", Amount: 5, SlippageBps: 100})
	require.NoError(t, err)
	assert.Equal(t, "7", resp.OutAmount)
	assert.Equal(t, "ExactIn", resp.SwapMode)
}
