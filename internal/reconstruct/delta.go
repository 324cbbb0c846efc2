package reconstruct

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/solana"
)

// DeltaStrategy infers a trade from aggregate token balance changes.
//
// Balances are summed per mint across all accounts, mints are ranked by the
// size of their change |post - pre| descending and the top two become base and
// quote. The signed change of the base decides the side. The pair must be on
// the allow-list. Transactions moving more than two tokens (multi-hop routes)
// can be attributed to the wrong pair.
type DeltaStrategy struct {
	// Now supplies the timestamp when the node reported no block time.
	Now func() time.Time
}

// NewDeltaStrategy returns a DeltaStrategy using the wall clock.
func NewDeltaStrategy() *DeltaStrategy {
	return &DeltaStrategy{Now: time.Now}
}

type mintDelta struct {
	mint  string
	delta decimal.Decimal // post - pre
}

// Reconstruct implements Strategy. Only missing balance metadata rejects up
// front; the execution error is not consulted here.
func (s *DeltaStrategy) Reconstruct(signature string, slot uint64, tx *solana.Transaction) (*domain.Trade, bool) {
	if tx == nil || tx.Meta == nil {
		return nil, false
	}

	pre := sumByMint(tx.Meta.PreTokenBalances)
	post := sumByMint(tx.Meta.PostTokenBalances)

	deltas := make([]mintDelta, 0, len(pre)+len(post))
	seen := make(map[string]struct{}, len(pre)+len(post))
	collect := func(mint string) {
		if _, ok := seen[mint]; ok {
			return
		}
		seen[mint] = struct{}{}
		d := post[mint].Sub(pre[mint])
		if d.IsZero() {
			return
		}
		deltas = append(deltas, mintDelta{mint: mint, delta: d})
	}
	for mint := range pre {
		collect(mint)
	}
	for mint := range post {
		collect(mint)
	}

	sort.Slice(deltas, func(i, j int) bool {
		if c := deltas[i].delta.Abs().Cmp(deltas[j].delta.Abs()); c != 0 {
			return c > 0
		}
		return deltas[i].mint < deltas[j].mint
	})

	baseMint, quoteMint := domain.UnknownSymbol, domain.UnknownSymbol
	var baseDelta, quoteDelta decimal.Decimal
	if len(deltas) > 0 {
		baseMint, baseDelta = deltas[0].mint, deltas[0].delta
	}
	if len(deltas) > 1 {
		quoteMint, quoteDelta = deltas[1].mint, deltas[1].delta
	}

	if !domain.IsAllowedMint(baseMint) || !domain.IsAllowedMint(quoteMint) {
		return nil, false
	}

	baseAmount := baseDelta.Abs()
	quoteAmount := quoteDelta.Abs()

	price := decimal.Zero
	if !baseAmount.IsZero() {
		price = quoteAmount.Div(baseAmount)
	}

	side := domain.SideSell
	if baseDelta.IsPositive() {
		side = domain.SideBuy
	}

	ts := s.now()
	if tx.BlockTime > 0 {
		ts = time.Unix(tx.BlockTime, 0)
	}

	amountF := baseAmount.InexactFloat64()
	priceF := price.InexactFloat64()

	return &domain.Trade{
		ID:          signature,
		Timestamp:   ts.UTC(),
		BaseSymbol:  domain.MintSymbol(baseMint),
		QuoteSymbol: domain.MintSymbol(quoteMint),
		BaseMint:    baseMint,
		QuoteMint:   quoteMint,
		Price:       priceF,
		Amount:      amountF,
		Side:        side,
		TotalValue:  price.Mul(baseAmount).InexactFloat64(),
		DEXProgram:  domain.ResolveDEX(tx.Meta.LogMessages),
		Slot:        slot,
	}, true
}

func (s *DeltaStrategy) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// sumByMint aggregates UI amounts per mint. Missing amounts count as zero.
func sumByMint(balances []solana.TokenBalance) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		out[b.Mint] = out[b.Mint].Add(uiAmount(b))
	}
	return out
}

func uiAmount(b solana.TokenBalance) decimal.Decimal {
	if b.UIAmountString != "" {
		if d, err := decimal.NewFromString(b.UIAmountString); err == nil {
			return d
		}
	}
	if b.UIAmount != nil {
		return decimal.NewFromFloat(*b.UIAmount)
	}
	return decimal.Zero
}

var _ Strategy = (*DeltaStrategy)(nil)
