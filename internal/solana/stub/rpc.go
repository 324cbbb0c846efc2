package stub

import (
	"context"
	"sync"

	"dex-trade-stream/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
// Unknown signatures are reported as absent (nil, nil), as the live node does.
type RPCClient struct {
	mu           sync.Mutex
	Transactions map[string]*solana.Transaction
	Errors       map[string]error
	calls        map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Errors:       make(map[string]error),
		calls:        make(map[string]int),
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[signature]++
	if err, ok := c.Errors[signature]; ok {
		return nil, err
	}
	return c.Transactions[signature], nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// FailWith makes lookups of signature return err.
func (c *RPCClient) FailWith(signature string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors[signature] = err
}

// Calls returns how many times signature was fetched.
func (c *RPCClient) Calls(signature string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[signature]
}

// Balance builds a token balance snapshot with the given decimals-adjusted amount.
func Balance(accountIndex int, mint string, amount float64) solana.TokenBalance {
	a := amount
	return solana.TokenBalance{
		AccountIndex: accountIndex,
		Mint:         mint,
		UIAmount:     &a,
	}
}

// SwapTransaction builds a successful transaction with the given balances and logs.
func SwapTransaction(signature string, slot, blockTime int64, pre, post []solana.TokenBalance, logs ...string) *solana.Transaction {
	return &solana.Transaction{
		Slot:      slot,
		Signature: signature,
		BlockTime: blockTime,
		Meta: &solana.TransactionMeta{
			LogMessages:       logs,
			PreTokenBalances:  pre,
			PostTokenBalances: post,
		},
	}
}

var _ solana.RPCClient = (*RPCClient)(nil)
