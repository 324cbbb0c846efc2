package ingestion

import "time"

// DefaultReconnectDelay is the pause between upstream sessions.
const DefaultReconnectDelay = 5 * time.Second

// Backoff decides how long to wait before the next upstream session.
// attempt is the number of sessions that have ended so far.
type Backoff interface {
	Next(attempt int) time.Duration
}

// FixedBackoff waits the same delay after every session.
type FixedBackoff struct {
	Delay time.Duration
}

// Next implements Backoff.
func (b FixedBackoff) Next(int) time.Duration {
	if b.Delay < 0 {
		return 0
	}
	return b.Delay
}

// BackoffFunc adapts a function to Backoff.
type BackoffFunc func(attempt int) time.Duration

// Next calls f.
func (f BackoffFunc) Next(attempt int) time.Duration {
	return f(attempt)
}
