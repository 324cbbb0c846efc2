package ingestion

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/observability"
	"dex-trade-stream/internal/reconstruct"
	"dex-trade-stream/internal/solana"
)

// DefaultFetchWorkers bounds concurrent transaction fetches.
const DefaultFetchWorkers = 64

// FetchPoolOptions contains configuration for creating a FetchPool.
type FetchPoolOptions struct {
	Fetcher  solana.RPCClient
	Strategy reconstruct.Strategy // Default: reconstruct.NewDeltaStrategy()
	// Workers bounds concurrent fetches. Zero or negative means unbounded.
	Workers int
	Logger  *log.Logger
}

// FetchPool fetches announced transactions concurrently, reconstructs
// trades and hands them to the consumer. Each signature is fetched once;
// failures drop that signature.
type FetchPool struct {
	fetcher  solana.RPCClient
	strategy reconstruct.Strategy
	pool     *ants.Pool
	logger   *log.Logger
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewFetchPool creates a new fetch pool.
func NewFetchPool(opts FetchPoolOptions) (*FetchPool, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("fetch pool: nil fetcher")
	}

	strategy := opts.Strategy
	if strategy == nil {
		strategy = reconstruct.NewDeltaStrategy()
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	size := opts.Workers
	if size <= 0 {
		size = -1 // unbounded
	}

	p := &FetchPool{
		fetcher:  opts.Fetcher,
		strategy: strategy,
		logger:   logger,
	}

	pool, err := ants.NewPool(size,
		ants.WithPanicHandler(func(v interface{}) {
			p.logger.Printf("fetch task panic: %v", v)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create fetch pool: %w", err)
	}
	p.pool = pool

	return p, nil
}

// Run dispatches every ref to a worker until refs closes or ctx is cancelled,
// then waits for in-flight fetches. Submission blocks while all workers are busy.
func (p *FetchPool) Run(ctx context.Context, refs <-chan SignatureRef, out chan<- *domain.Trade) error {
	defer p.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ref, ok := <-refs:
			if !ok {
				return nil
			}
			if err := p.submit(ctx, ref, out); err != nil {
				return err
			}
		}
	}
}

func (p *FetchPool) submit(ctx context.Context, ref SignatureRef, out chan<- *domain.Trade) error {
	p.wg.Add(1)
	p.track(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		defer p.track(-1)
		p.process(ctx, ref, out)
	})
	if err != nil {
		p.track(-1)
		p.wg.Done()
		return fmt.Errorf("submit fetch %s: %w", ref.Signature, err)
	}
	return nil
}

func (p *FetchPool) track(delta int64) {
	observability.SetFetchPoolRunning(int(p.inFlight.Add(delta)))
}

// process fetches one transaction and forwards the reconstructed trade.
func (p *FetchPool) process(ctx context.Context, ref SignatureRef, out chan<- *domain.Trade) {
	tx, err := p.fetcher.GetTransaction(ctx, ref.Signature)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Printf("fetch %s failed: %v", ref.Signature, err)
		}
		observability.RecordFetch("error")
		return
	}
	if tx == nil {
		observability.RecordFetch("absent")
		return
	}
	observability.RecordFetch("ok")

	trade, ok := p.strategy.Reconstruct(ref.Signature, ref.Slot, tx)
	if !ok {
		observability.RecordReconstruction("", false)
		return
	}
	observability.RecordReconstruction(trade.DEXProgram, true)

	select {
	case out <- trade:
	case <-ctx.Done():
	}
}

// Running returns the number of fetches submitted and not yet finished.
func (p *FetchPool) Running() int {
	return int(p.inFlight.Load())
}

// Release stops the underlying worker pool.
func (p *FetchPool) Release() {
	p.pool.Release()
}
