package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"dex-trade-stream/internal/observability"
	"dex-trade-stream/internal/solana"
)

// ErrUpstreamClosed is returned by Subscriber.Run when every subscription
// channel closed without a transport error.
var ErrUpstreamClosed = errors.New("upstream subscription closed")

// SignatureRef identifies a transaction announced by the log subscription.
type SignatureRef struct {
	Signature string
	Slot      uint64
}

// Dialer opens a new upstream WebSocket connection.
type Dialer func(ctx context.Context) (solana.WSClient, error)

// WSDialer returns a Dialer connecting to endpoint with cfg.
func WSDialer(endpoint string, cfg *solana.WSClientConfig) Dialer {
	return func(ctx context.Context) (solana.WSClient, error) {
		return solana.NewWSClient(ctx, endpoint, cfg)
	}
}

// SubscriberOptions contains configuration for creating a Subscriber.
type SubscriberOptions struct {
	Dial   Dialer
	Dedup  *SignatureSet // Default: NewSignatureSet(DefaultDedupCapacity)
	Logger *log.Logger
}

// Subscriber owns the upstream log subscription. Each Run opens one
// connection, subscribes once per program and forwards the signatures of
// successful, previously unseen transactions. The dedup set outlives
// individual connections.
type Subscriber struct {
	dial      Dialer
	dedup     *SignatureSet
	logger    *log.Logger
	connected atomic.Bool
}

// NewSubscriber creates a new log subscriber.
func NewSubscriber(opts SubscriberOptions) *Subscriber {
	dedup := opts.Dedup
	if dedup == nil {
		dedup = NewSignatureSet(DefaultDedupCapacity)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Subscriber{
		dial:   opts.Dial,
		dedup:  dedup,
		logger: logger,
	}
}

// Run subscribes to logs mentioning each program and forwards signatures to sink.
// It returns when the connection ends, a subscription fails or ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context, programs []string, sink chan<- SignatureRef) error {
	if s.dial == nil {
		return errors.New("subscriber has no dialer")
	}
	if len(programs) == 0 {
		return errors.New("no programs to subscribe")
	}

	ws, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect upstream: %w", err)
	}
	defer ws.Close()

	// Some providers only support one address per subscription.
	channels := make([]<-chan solana.LogNotification, 0, len(programs))
	for _, program := range programs {
		ch, err := ws.SubscribeLogs(ctx, solana.LogsFilter{
			Mentions: []string{program},
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", program, err)
		}
		channels = append(channels, ch)
		s.logger.Printf("Subscribed to program: %s", program)
	}

	s.setConnected(true)
	defer s.setConnected(false)

	merged := mergeNotifications(ctx, channels)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case notif, ok := <-merged:
			if !ok {
				if err := ws.Err(); err != nil {
					return err
				}
				return ErrUpstreamClosed
			}
			if err := s.handle(ctx, notif, sink); err != nil {
				return err
			}
		}
	}
}

// Connected reports whether a session is currently subscribed.
func (s *Subscriber) Connected() bool {
	return s.connected.Load()
}

func (s *Subscriber) setConnected(v bool) {
	s.connected.Store(v)
	observability.SetUpstreamConnected(v)
}

// handle filters one notification and forwards it to sink.
func (s *Subscriber) handle(ctx context.Context, notif solana.LogNotification, sink chan<- SignatureRef) error {
	observability.RecordNotification(notif.Slot)

	if notif.Failed() {
		observability.RecordNotificationDropped("failed")
		return nil
	}
	if notif.Signature == "" {
		observability.RecordNotificationDropped("empty")
		return nil
	}
	if !s.dedup.Add(notif.Signature) {
		observability.RecordNotificationDropped("duplicate")
		return nil
	}

	var slot uint64
	if notif.Slot > 0 {
		slot = uint64(notif.Slot)
	}

	select {
	case sink <- SignatureRef{Signature: notif.Signature, Slot: slot}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mergeNotifications fans several subscription channels into one.
// The result is closed once every input has closed or ctx is done.
func mergeNotifications(ctx context.Context, channels []<-chan solana.LogNotification) <-chan solana.LogNotification {
	merged := make(chan solana.LogNotification, 1000)

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(logsCh <-chan solana.LogNotification) {
			defer wg.Done()
			for notif := range logsCh {
				select {
				case merged <- notif:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}

	go func() {
		wg.Wait()
		close(merged)
	}()

	return merged
}
