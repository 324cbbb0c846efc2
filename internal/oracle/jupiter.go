package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/observability"
)

// Default Jupiter endpoints.
const (
	DefaultPriceURL    = "https://lite-api.jup.ag/price/v3"
	DefaultQuoteURL    = "https://quote-api.jup.ag/v6"
	DefaultTimeout     = 10 * time.Second
	DefaultSlippageBps = 50
)

// PriceData is one entry of the Price API v3 response, keyed by mint.
type PriceData struct {
	USDPrice       float64  `json:"usdPrice"`
	BlockID        *uint64  `json:"blockId"`
	Decimals       *int     `json:"decimals"`
	PriceChange24h *float64 `json:"priceChange24h"`
}

// QuoteRequest parameterizes a Swap API v6 quote.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // raw input amount in base units
	SlippageBps int
}

// QuoteResponse is the Swap API v6 quote.
type QuoteResponse struct {
	InputMint            string       `json:"inputMint"`
	InAmount             string       `json:"inAmount"`
	OutputMint           string       `json:"outputMint"`
	OutAmount            string       `json:"outAmount"`
	OtherAmountThreshold string       `json:"otherAmountThreshold"`
	SwapMode             string       `json:"swapMode"`
	SlippageBps          int          `json:"slippageBps"`
	PlatformFee          *PlatformFee `json:"platformFee"`
	PriceImpactPct       string       `json:"priceImpactPct"`
	RoutePlan            []RoutePlan  `json:"routePlan"`
}

// PlatformFee is the fee charged by the integrating platform.
type PlatformFee struct {
	Amount string `json:"amount"`
	FeeBps int    `json:"feeBps"`
}

// RoutePlan is one hop of a quoted route.
type RoutePlan struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

// SwapInfo describes the venue used by a hop.
type SwapInfo struct {
	AMMKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// JupiterClient implements PriceSource using Jupiter's Price API v3, with
// the Swap API v6 quote as a fallback for mints the price API does not list.
type JupiterClient struct {
	priceURL    string
	quoteURL    string
	client      *http.Client
	slippageBps int
}

// Option configures JupiterClient.
type Option func(*JupiterClient)

// WithPriceURL overrides the Price API base URL.
func WithPriceURL(u string) Option {
	return func(c *JupiterClient) {
		c.priceURL = u
	}
}

// WithQuoteURL overrides the Swap API base URL. Empty disables quote fallback.
func WithQuoteURL(u string) Option {
	return func(c *JupiterClient) {
		c.quoteURL = u
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *JupiterClient) {
		c.client = client
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *JupiterClient) {
		c.client.Timeout = d
	}
}

// NewJupiterClient creates a new Jupiter client.
func NewJupiterClient(opts ...Option) *JupiterClient {
	c := &JupiterClient{
		priceURL:    DefaultPriceURL,
		quoteURL:    DefaultQuoteURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		slippageBps: DefaultSlippageBps,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ PriceSource = (*JupiterClient)(nil)

// Price returns the price of base in quote units. A USDC quote uses the
// base's USD price directly; other quotes use the ratio of USD prices.
func (c *JupiterClient) Price(ctx context.Context, baseMint, quoteMint string) (price float64, err error) {
	start := time.Now()
	defer func() {
		observability.RecordOracle(time.Since(start).Seconds(), err)
	}()

	price, err = c.ratioPrice(ctx, baseMint, quoteMint)
	if errors.Is(err, ErrPriceNotFound) && c.quoteURL != "" {
		return c.quotePrice(ctx, baseMint, quoteMint)
	}
	return price, err
}

func (c *JupiterClient) ratioPrice(ctx context.Context, baseMint, quoteMint string) (float64, error) {
	basePrice, err := c.USDPrice(ctx, baseMint)
	if err != nil {
		return 0, fmt.Errorf("base token price: %w", err)
	}
	if quoteMint == domain.MintUSDC {
		return basePrice, nil
	}

	quotePrice, err := c.USDPrice(ctx, quoteMint)
	if err != nil {
		return 0, fmt.Errorf("quote token price: %w", err)
	}
	if quotePrice <= 0 {
		return 0, ErrZeroQuotePrice
	}
	return basePrice / quotePrice, nil
}

// USDPrice returns the USD price of a single mint.
func (c *JupiterClient) USDPrice(ctx context.Context, mint string) (float64, error) {
	q := url.Values{}
	q.Set("ids", mint)

	var resp map[string]PriceData
	if err := c.getJSON(ctx, c.priceURL+"?"+q.Encode(), &resp); err != nil {
		return 0, err
	}

	data, ok := resp[mint]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPriceNotFound, mint)
	}
	return data.USDPrice, nil
}

// Quote requests a swap quote.
func (c *JupiterClient) Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	slippage := req.SlippageBps
	if slippage <= 0 {
		slippage = c.slippageBps
	}

	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippage))

	var resp QuoteResponse
	if err := c.getJSON(ctx, c.quoteURL+"/quote?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// quotePrice prices one whole base token by quoting a swap into quote.
func (c *JupiterClient) quotePrice(ctx context.Context, baseMint, quoteMint string) (float64, error) {
	baseDec, ok := domain.MintDecimals(baseMint)
	if !ok {
		return 0, fmt.Errorf("%w: no decimals for %s", ErrPriceNotFound, baseMint)
	}
	quoteDec, ok := domain.MintDecimals(quoteMint)
	if !ok {
		return 0, fmt.Errorf("%w: no decimals for %s", ErrPriceNotFound, quoteMint)
	}

	oneBase := decimal.New(1, baseDec)
	quote, err := c.Quote(ctx, QuoteRequest{
		InputMint:  baseMint,
		OutputMint: quoteMint,
		Amount:     uint64(oneBase.IntPart()),
	})
	if err != nil {
		return 0, fmt.Errorf("quote: %w", err)
	}

	in, err := decimal.NewFromString(quote.InAmount)
	if err != nil || in.IsZero() {
		return 0, fmt.Errorf("quote: invalid inAmount %q", quote.InAmount)
	}
	out, err := decimal.NewFromString(quote.OutAmount)
	if err != nil {
		return 0, fmt.Errorf("quote: invalid outAmount %q", quote.OutAmount)
	}

	inUI := in.Shift(-baseDec)
	outUI := out.Shift(-quoteDec)
	return outUI.Div(inUI).InexactFloat64(), nil
}

func (c *JupiterClient) getJSON(ctx context.Context, rawURL string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
