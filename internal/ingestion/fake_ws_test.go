package ingestion

import (
	"context"
	"io"
	"log"
	"sync"

	"dex-trade-stream/internal/solana"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeWS is a controllable solana.WSClient.
type fakeWS struct {
	mu           sync.Mutex
	filters      []solana.LogsFilter
	channels     []chan solana.LogNotification
	subscribeErr error
	err          error

	done      chan struct{}
	closeOnce sync.Once
}

func newFakeWS() *fakeWS {
	return &fakeWS{done: make(chan struct{})}
}

func (f *fakeWS) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	ch := make(chan solana.LogNotification, 64)
	f.filters = append(f.filters, filter)
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeWS) Done() <-chan struct{} { return f.done }

func (f *fakeWS) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeWS) Close() error {
	f.end(nil)
	return nil
}

// end simulates the socket going away with err.
func (f *fakeWS) end(err error) {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.err = err
		for _, ch := range f.channels {
			close(ch)
		}
		f.mu.Unlock()
		close(f.done)
	})
}

func (f *fakeWS) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

func (f *fakeWS) send(sub int, n solana.LogNotification) {
	f.mu.Lock()
	ch := f.channels[sub]
	f.mu.Unlock()
	ch <- n
}

func notification(signature string, slot int64, err interface{}) solana.LogNotification {
	return solana.LogNotification{
		Signature: signature,
		Slot:      slot,
		Logs:      []string{"Program log: swap"},
		Err:       err,
	}
}

func dialerFor(ws ...*fakeWS) (Dialer, func() int) {
	var mu sync.Mutex
	calls := 0
	dial := func(context.Context) (solana.WSClient, error) {
		mu.Lock()
		defer mu.Unlock()
		c := newFakeWS()
		if calls < len(ws) {
			c = ws[calls]
		}
		calls++
		return c, nil
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return calls
	}
	return dial, count
}
