package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to program logs matching the filter.
	// The returned channel is closed when the connection ends.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)

	// Done is closed once the connection has ended for any reason.
	Done() <-chan struct{}

	// Err returns the reason the connection ended, or nil while it is open
	// or after a local Close.
	Err() error

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these program IDs.
	Mentions []string
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	SubscriptionID int64
	Signature      string
	Slot           int64
	Logs           []string
	Err            interface{} // non-nil when the transaction failed
}

// Failed reports whether the notified transaction failed on chain.
func (n *LogNotification) Failed() bool {
	return n.Err != nil
}
