// Package main runs ingestion without the client API: trades are persisted
// and published to the configured sinks but not streamed to WebSocket clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"dex-trade-stream/internal/domain"
	"dex-trade-stream/internal/ingestion"
	"dex-trade-stream/internal/observability"
	"dex-trade-stream/internal/oracle"
	"dex-trade-stream/internal/pricefeed"
	"dex-trade-stream/internal/sink"
	"dex-trade-stream/internal/solana"
	"dex-trade-stream/internal/storage"
	chstore "dex-trade-stream/internal/storage/clickhouse"
	"dex-trade-stream/internal/storage/memory"
)

// DEX program aliases mapped to program IDs.
var dexAliases = map[string]string{
	"jupiter":   domain.JupiterV6,
	"jupiterv4": domain.JupiterV4,
	"raydium":   domain.RaydiumAMMV4,
	"orca":      domain.OrcaWhirlpool,
	"meteora":   domain.Meteora,
	"phoenix":   domain.Phoenix,
}

func main() {
	// Parse flags
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	kafkaBrokers := flag.String("kafka-brokers", os.Getenv("KAFKA_BROKERS"), "Comma-separated Kafka brokers (empty to disable)")
	kafkaTopic := flag.String("kafka-topic", sink.DefaultKafkaTopic, "Kafka topic for trades")
	redisURL := flag.String("redis-url", os.Getenv("REDIS_URL"), "Redis URL for the latest trade cache (empty to disable)")
	programs := flag.String("programs", "", "Comma-separated DEX program IDs to monitor")
	dex := flag.String("dex", "jupiter,raydium,orca", "Comma-separated DEX aliases (jupiter, jupiterv4, raydium, orca, meteora, phoenix)")
	workers := flag.Int("workers", 64, "Concurrent transaction fetches (0 for unbounded)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of ClickHouse")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *wsEndpoint == "" {
		logger.Fatal("--ws-endpoint is required")
	}
	if !*useMemory && *clickhouseDSN == "" {
		logger.Fatal("--clickhouse-dsn is required (use --use-memory for in-memory storage)")
	}

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Resolve DEX programs
	programList := resolvePrograms(*programs, *dex)
	if len(programList) == 0 {
		logger.Fatal("No DEX programs specified. Use --programs or --dex")
	}
	logger.Printf("Monitoring DEX programs: %v", programList)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err := run(ctx, logger, runOptions{
		rpcEndpoint:   *rpcEndpoint,
		wsEndpoint:    *wsEndpoint,
		clickhouseDSN: *clickhouseDSN,
		kafkaBrokers:  splitList(*kafkaBrokers),
		kafkaTopic:    *kafkaTopic,
		redisURL:      *redisURL,
		programs:      programList,
		workers:       *workers,
		useMemory:     *useMemory,
	})

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

type runOptions struct {
	rpcEndpoint   string
	wsEndpoint    string
	clickhouseDSN string
	kafkaBrokers  []string
	kafkaTopic    string
	redisURL      string
	programs      []string
	workers       int
	useMemory     bool
}

// run wires the ingestion pipeline and blocks until ctx is cancelled.
func run(ctx context.Context, logger *log.Logger, opts runOptions) error {
	var store storage.Store = storage.Composite{
		TradeStore:   memory.NewTradeStore(),
		SessionStore: memory.NewSessionStore(),
	}
	if !opts.useMemory {
		conn, err := chstore.NewConn(ctx, opts.clickhouseDSN)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()
		store = storage.Composite{
			TradeStore:   chstore.NewTradeStore(conn),
			SessionStore: chstore.NewSessionStore(conn),
		}
	}

	var (
		sinks []ingestion.TradeSink
		cache pricefeed.PriceCache
	)
	if len(opts.kafkaBrokers) > 0 {
		publisher := sink.NewKafkaPublisher(opts.kafkaBrokers, opts.kafkaTopic)
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}
	if opts.redisURL != "" {
		redisCache, err := sink.NewRedisCache(ctx, opts.redisURL, sink.DefaultRedisTTL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisCache.Close()
		sinks = append(sinks, redisCache)
		cache = redisCache
	}

	pool, err := ingestion.NewFetchPool(ingestion.FetchPoolOptions{
		Fetcher: solana.NewHTTPClient(opts.rpcEndpoint),
		Workers: opts.workers,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create fetch pool: %w", err)
	}
	defer pool.Release()

	supervisor := ingestion.NewSupervisor(ingestion.SupervisorOptions{
		Subscriber: ingestion.NewSubscriber(ingestion.SubscriberOptions{
			Dial:   ingestion.WSDialer(opts.wsEndpoint, nil),
			Logger: logger,
		}),
		FetchPool: pool,
		Programs:  opts.programs,
		Store:     store,
		Book: pricefeed.NewBook(pricefeed.BookOptions{
			Source: oracle.NewJupiterClient(),
			Cache:  cache,
			Logger: logger,
		}),
		Sinks:  sinks,
		Logger: logger,
	})

	logger.Println("Ingestion started")
	return supervisor.Run(ctx)
}

// resolvePrograms resolves program IDs from flags.
func resolvePrograms(programs, dex string) []string {
	result := make(map[string]bool)

	// Add explicit programs
	for _, p := range splitList(programs) {
		result[p] = true
	}

	// Add programs from DEX aliases
	for _, alias := range splitList(dex) {
		if programID, ok := dexAliases[strings.ToLower(alias)]; ok {
			result[programID] = true
		}
	}

	// Keep match priority order for known programs, unknown ones last
	list := make([]string, 0, len(result))
	for _, id := range domain.DefaultProgramIDs() {
		if result[id] {
			list = append(list, id)
			delete(result, id)
		}
	}
	extra := make([]string, 0, len(result))
	for p := range result {
		extra = append(extra, p)
	}
	sort.Strings(extra)
	return append(list, extra...)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
