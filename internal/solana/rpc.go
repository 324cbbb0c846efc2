package solana

import "context"

// RPCClient defines the Solana RPC HTTP methods used by ingestion.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature.
	// Returns nil, nil when the transaction is unknown or the node is rate limiting.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Transaction represents a confirmed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds), 0 when the node did not report one
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// Failed reports whether the transaction was executed with an error.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && t.Meta.Err != nil
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is an SPL token account balance snapshot.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	// UIAmount is the decimals-adjusted amount. Nil when the node returned null.
	UIAmount *float64
	// UIAmountString is the exact decimals-adjusted amount as sent by the node.
	UIAmountString string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}
