package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-trade-stream/internal/solana"
)

func collect(sink <-chan SignatureRef) []string {
	var sigs []string
	for {
		select {
		case ref := <-sink:
			sigs = append(sigs, ref.Signature)
		default:
			return sigs
		}
	}
}

func startSubscriber(t *testing.T, sub *Subscriber, programs []string, sink chan SignatureRef) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- sub.Run(context.Background(), programs, sink)
	}()
	return errCh
}

func TestSubscriber_SubscribesPerProgram(t *testing.T) {
	ws := newFakeWS()
	dial, _ := dialerFor(ws)
	sub := NewSubscriber(SubscriberOptions{Dial: dial, Logger: testLogger()})

	errCh := startSubscriber(t, sub, []string{"prog1", "prog2", "prog3"}, make(chan SignatureRef, 10))
	require.Eventually(t, func() bool { return ws.subscriptions() == 3 }, time.Second, 5*time.Millisecond)

	ws.mu.Lock()
	for i, p := range []string{"prog1", "prog2", "prog3"} {
		assert.Equal(t, []string{p}, ws.filters[i].Mentions)
	}
	ws.mu.Unlock()

	ws.end(nil)
	assert.ErrorIs(t, <-errCh, ErrUpstreamClosed)
}

func TestSubscriber_Dedup(t *testing.T) {
	ws := newFakeWS()
	dial, _ := dialerFor(ws)
	sub := NewSubscriber(SubscriberOptions{Dial: dial, Logger: testLogger()})
	sink := make(chan SignatureRef, 10)

	errCh := startSubscriber(t, sub, []string{"prog1", "prog2"}, sink)
	require.Eventually(t, func() bool { return ws.subscriptions() == 2 }, time.Second, 5*time.Millisecond)

	// The same signature arrives once per program it mentions and again as a replay.
	ws.send(0, notification("sigA", 10, nil))
	ws.send(1, notification("sigA", 10, nil))
	ws.send(0, notification("sigB", 11, nil))
	ws.send(1, notification("sigA", 10, nil))
	ws.send(1, notification("sigB", 11, nil))

	socketErr := errors.New("socket closed")
	ws.end(socketErr)
	assert.ErrorIs(t, <-errCh, socketErr)

	assert.ElementsMatch(t, []string{"sigA", "sigB"}, collect(sink))
}

func TestSubscriber_DropsFailedAndEmpty(t *testing.T) {
	ws := newFakeWS()
	dial, _ := dialerFor(ws)
	sub := NewSubscriber(SubscriberOptions{Dial: dial, Logger: testLogger()})
	sink := make(chan SignatureRef, 10)

	errCh := startSubscriber(t, sub, []string{"prog1"}, sink)
	require.Eventually(t, func() bool { return ws.subscriptions() == 1 }, time.Second, 5*time.Millisecond)

	ws.send(0, notification("failed1", 5, map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}))
	ws.send(0, notification("failed2", 5, "AccountInUse"))
	ws.send(0, notification("", 5, nil))
	ws.send(0, notification("ok", 6, nil))

	ws.end(nil)
	<-errCh

	refs := collect(sink)
	assert.Equal(t, []string{"ok"}, refs)
}

func TestSubscriber_ForwardsSlot(t *testing.T) {
	ws := newFakeWS()
	dial, _ := dialerFor(ws)
	sub := NewSubscriber(SubscriberOptions{Dial: dial, Logger: testLogger()})
	sink := make(chan SignatureRef, 10)

	errCh := startSubscriber(t, sub, []string{"prog1"}, sink)
	require.Eventually(t, func() bool { return ws.subscriptions() == 1 }, time.Second, 5*time.Millisecond)

	ws.send(0, notification("sig", 12345, nil))
	ref := <-sink
	assert.Equal(t, SignatureRef{Signature: "sig", Slot: 12345}, ref)

	ws.end(nil)
	<-errCh
}

func TestSubscriber_DedupSurvivesReconnect(t *testing.T) {
	first, second := newFakeWS(), newFakeWS()
	dial, _ := dialerFor(first, second)
	sub := NewSubscriber(SubscriberOptions{Dial: dial, Logger: testLogger()})
	sink := make(chan SignatureRef, 10)

	errCh := startSubscriber(t, sub, []string{"prog1"}, sink)
	require.Eventually(t, func() bool { return first.subscriptions() == 1 }, time.Second, 5*time.Millisecond)
	first.send(0, notification("sig", 1, nil))
	first.end(nil)
	<-errCh

	errCh = startSubscriber(t, sub, []string{"prog1"}, sink)
	require.Eventually(t, func() bool { return second.subscriptions() == 1 }, time.Second, 5*time.Millisecond)
	second.send(0, notification("sig", 1, nil))
	second.end(nil)
	<-errCh

	assert.Equal(t, []string{"sig"}, collect(sink))
}

func TestSubscriber_SubscribeError(t *testing.T) {
	ws := newFakeWS()
	ws.subscribeErr = errors.New("rejected")
	dial, _ := dialerFor(ws)
	sub := NewSubscriber(SubscriberOptions{Dial: dial, Logger: testLogger()})

	err := sub.Run(context.Background(), []string{"prog1"}, make(chan SignatureRef, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe prog1")
}

func TestSubscriber_DialError(t *testing.T) {
	sub := NewSubscriber(SubscriberOptions{
		Dial: func(context.Context) (solana.WSClient, error) {
			return nil, errors.New("connection refused")
		},
		Logger: testLogger(),
	})

	err := sub.Run(context.Background(), []string{"prog1"}, make(chan SignatureRef, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect upstream")
}

func TestSubscriber_ContextCancel(t *testing.T) {
	ws := newFakeWS()
	dial, _ := dialerFor(ws)
	sub := NewSubscriber(SubscriberOptions{Dial: dial, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sub.Run(ctx, []string{"prog1"}, make(chan SignatureRef, 1)) }()
	require.Eventually(t, func() bool { return ws.subscriptions() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	select {
	case <-ws.Done():
	case <-time.After(time.Second):
		t.Fatal("connection not closed after cancel")
	}
}
