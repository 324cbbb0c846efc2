package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Token mint addresses of the allow-list.
const (
	MintSOL  = "So11111111111111111111111111111111111111112"
	MintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	MintUSDT = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	MintBONK = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	MintJUP  = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"
	MintWIF  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
	MintRAY  = "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
)

// UnknownSymbol is used for mints outside the allow-list.
const UnknownSymbol = "UNKNOWN"

// DefaultPair is the pair selected before any client chooses one.
const DefaultPair = "SOL/USDC"

var (
	// ErrInvalidPair is returned for pair strings not in BASE/QUOTE form.
	ErrInvalidPair = errors.New("pair must be in format BASE/QUOTE")

	// ErrUnknownSymbol is returned for symbols outside the allow-list.
	ErrUnknownSymbol = errors.New("unknown token symbol")
)

// Token is an entry of the allow-list.
type Token struct {
	Symbol   string
	Mint     string
	Decimals int32 // on-chain base-unit exponent
}

// AllowedTokens is the fixed allow-list in display order.
var AllowedTokens = []Token{
	{Symbol: "SOL", Mint: MintSOL, Decimals: 9},
	{Symbol: "USDC", Mint: MintUSDC, Decimals: 6},
	{Symbol: "USDT", Mint: MintUSDT, Decimals: 6},
	{Symbol: "BONK", Mint: MintBONK, Decimals: 5},
	{Symbol: "JUP", Mint: MintJUP, Decimals: 6},
	{Symbol: "WIF", Mint: MintWIF, Decimals: 6},
	{Symbol: "RAY", Mint: MintRAY, Decimals: 6},
}

var (
	symbolToMint = make(map[string]string, len(AllowedTokens))
	mintToSymbol = make(map[string]string, len(AllowedTokens))
	mintDecimals = make(map[string]int32, len(AllowedTokens))
)

func init() {
	for _, t := range AllowedTokens {
		symbolToMint[t.Symbol] = t.Mint
		mintToSymbol[t.Mint] = t.Symbol
		mintDecimals[t.Mint] = t.Decimals
	}
}

// MintDecimals returns the decimals of an allow-listed mint.
func MintDecimals(mint string) (int32, bool) {
	d, ok := mintDecimals[mint]
	return d, ok
}

// IsAllowedMint reports whether mint is on the allow-list.
func IsAllowedMint(mint string) bool {
	_, ok := mintToSymbol[mint]
	return ok
}

// MintSymbol returns the symbol for mint, or UnknownSymbol.
func MintSymbol(mint string) string {
	if s, ok := mintToSymbol[mint]; ok {
		return s
	}
	return UnknownSymbol
}

// SymbolMint returns the mint for symbol.
func SymbolMint(symbol string) (string, bool) {
	m, ok := symbolToMint[symbol]
	return m, ok
}

// FormatPair joins two symbols as "BASE/QUOTE".
func FormatPair(base, quote string) string {
	return base + "/" + quote
}

// ParsePair splits "BASE/QUOTE" into its symbols.
// Symbols are not checked against the allow-list.
func ParsePair(pair string) (base, quote string, err error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPair, pair)
	}
	return parts[0], parts[1], nil
}

// PairMints resolves "BASE/QUOTE" to the mints of both sides.
func PairMints(pair string) (baseMint, quoteMint string, err error) {
	base, quote, err := ParsePair(pair)
	if err != nil {
		return "", "", err
	}
	baseMint, ok := SymbolMint(base)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownSymbol, base)
	}
	quoteMint, ok = SymbolMint(quote)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownSymbol, quote)
	}
	return baseMint, quoteMint, nil
}
