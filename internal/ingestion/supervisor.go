package ingestion

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/observability"
	"dex-trade-stream/internal/pricefeed"
	"dex-trade-stream/internal/storage"
)

// Supervisor defaults.
const (
	DefaultTradeBuffer     = 100
	DefaultSignatureBuffer = 1000
	DefaultCleanupInterval = time.Hour
)

// TradeSink receives every stored trade. Delivery is best-effort.
type TradeSink interface {
	Name() string
	Publish(ctx context.Context, t *domain.Trade) error
}

// TradeBroadcaster fans a trade out to connected clients.
type TradeBroadcaster interface {
	BroadcastTrade(t *domain.Trade) (int, error)
}

// Service is a long-running background task started by the Supervisor.
type Service interface {
	Run(ctx context.Context) error
}

// SupervisorOptions contains configuration for creating a Supervisor.
type SupervisorOptions struct {
	Subscriber  *Subscriber // nil disables ingestion
	FetchPool   *FetchPool
	Programs    []string
	Backoff     Backoff // Default: FixedBackoff{DefaultReconnectDelay}
	Store       storage.Store
	Broadcaster TradeBroadcaster
	Book        *pricefeed.Book // Default: NewBook with no oracle
	Ticker      Service         // optional price ticker
	Sinks       []TradeSink

	TradeBuffer     int           // Default: 100
	SignatureBuffer int           // Default: 1000
	CleanupInterval time.Duration // Default: 1h, negative disables
	Logger          *log.Logger
}

// Supervisor runs the ingestion pipeline: the upstream subscription under a
// reconnect loop, the fetch pool, the price ticker, session cleanup and the
// trade consumption loop.
type Supervisor struct {
	subscriber      *Subscriber
	fetchPool       *FetchPool
	programs        []string
	backoff         Backoff
	store           storage.Store
	broadcaster     TradeBroadcaster
	book            *pricefeed.Book
	ticker          Service
	sinks           []TradeSink
	tradeBuffer     int
	signatureBuffer int
	cleanupInterval time.Duration
	logger          *log.Logger

	lastTrade atomic.Int64 // unix nanos of the last handled trade
}

// NewSupervisor creates a new ingestion supervisor.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	backoff := opts.Backoff
	if backoff == nil {
		backoff = FixedBackoff{Delay: DefaultReconnectDelay}
	}

	tradeBuffer := opts.TradeBuffer
	if tradeBuffer <= 0 {
		tradeBuffer = DefaultTradeBuffer
	}

	signatureBuffer := opts.SignatureBuffer
	if signatureBuffer <= 0 {
		signatureBuffer = DefaultSignatureBuffer
	}

	cleanupInterval := opts.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	book := opts.Book
	if book == nil {
		book = pricefeed.NewBook(pricefeed.BookOptions{Logger: logger})
	}

	return &Supervisor{
		subscriber:      opts.Subscriber,
		fetchPool:       opts.FetchPool,
		programs:        opts.Programs,
		backoff:         backoff,
		store:           opts.Store,
		broadcaster:     opts.Broadcaster,
		book:            book,
		ticker:          opts.Ticker,
		sinks:           opts.Sinks,
		tradeBuffer:     tradeBuffer,
		signatureBuffer: signatureBuffer,
		cleanupInterval: cleanupInterval,
		logger:          logger,
	}
}

// Run starts every pipeline task and blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Println("Starting trade supervisor...")

	trades := make(chan *domain.Trade, s.tradeBuffer)
	var wg sync.WaitGroup

	if s.subscriber != nil && s.fetchPool != nil {
		refs := make(chan SignatureRef, s.signatureBuffer)

		wg.Add(2)
		go func() {
			defer wg.Done()
			defer close(refs)
			s.subscribeLoop(ctx, refs)
		}()
		go func() {
			defer wg.Done()
			if err := s.fetchPool.Run(ctx, refs, trades); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Printf("fetch pool stopped: %v", err)
			}
		}()
	} else {
		s.logger.Println("Upstream ingestion disabled")
	}

	if s.ticker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ticker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Printf("price ticker stopped: %v", err)
			}
		}()
	}

	if s.store != nil && s.cleanupInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.cleanupLoop(ctx)
		}()
	}

	s.consume(ctx, trades)
	wg.Wait()

	s.logger.Println("Trade supervisor stopped")
	return ctx.Err()
}

// subscribeLoop reruns the subscriber after every session ends, clean or not.
func (s *Supervisor) subscribeLoop(ctx context.Context, refs chan<- SignatureRef) {
	for attempt := 1; ; attempt++ {
		err := s.subscriber.Run(ctx, s.programs, refs)
		if ctx.Err() != nil {
			return
		}

		observability.RecordReconnect()
		delay := s.backoff.Next(attempt)
		s.logger.Printf("Upstream session ended: %v, reconnecting in %s", err, delay)

		if !sleepContext(ctx, delay) {
			return
		}
	}
}

func (s *Supervisor) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.store.CleanupExpiredSessions(ctx); err != nil {
				observability.RecordStoreError("cleanup_sessions")
				s.logger.Printf("session cleanup failed: %v", err)
			}
		}
	}
}

func (s *Supervisor) consume(ctx context.Context, trades <-chan *domain.Trade) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-trades:
			s.HandleTrade(ctx, t)
		}
	}
}

// HandleTrade validates, persists, publishes and broadcasts one trade. An
// invalid price is replaced by the last known price for the pair. Storage
// and sink failures are logged and do not stop the broadcast.
func (s *Supervisor) HandleTrade(ctx context.Context, t *domain.Trade) *domain.Trade {
	if t == nil {
		return nil
	}

	if !t.HasValidPrice() {
		price := s.book.Last(ctx, t.Pair())
		fixed := t.WithPrice(price)
		observability.RecordPriceReplaced()
		s.logger.Printf("trade %s: invalid price %v replaced with %v", t.ID, t.Price, price)
		t = &fixed
	}

	if s.store != nil {
		err := s.store.StoreTrade(ctx, t)
		if errors.Is(err, storage.ErrDuplicateKey) {
			err = nil
		}
		observability.RecordStore(err)
		if err != nil {
			s.logger.Printf("store trade %s: %v", t.ID, err)
		}
	}

	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, t); err != nil {
			observability.RecordSinkError(sink.Name())
			s.logger.Printf("publish trade %s to %s: %v", t.ID, sink.Name(), err)
		}
	}

	if s.broadcaster != nil {
		if _, err := s.broadcaster.BroadcastTrade(t); err != nil {
			s.logger.Printf("broadcast trade %s: %v", t.ID, err)
		}
	}

	s.lastTrade.Store(time.Now().UnixNano())
	return t
}

// LastTradeAt returns when the last trade was handled, zero if none.
func (s *Supervisor) LastTradeAt() time.Time {
	n := s.lastTrade.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// UpstreamConnected reports whether the log subscription is currently open.
func (s *Supervisor) UpstreamConnected() bool {
	return s.subscriber != nil && s.subscriber.Connected()
}

// sleepContext waits for d or until ctx is done. Returns false if ctx ended first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
