// Package main runs the trade stream server:
// - Ingestion: upstream log subscription, transaction fetch, trade reconstruction
// - Price ticker: oracle price of the selected pair every few seconds
// - HTTP: trade queries, client WebSocket stream, wallet sign-in, health/metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dex-trade-stream/internal/api"
	"dex-trade-stream/internal/auth"
	"dex-trade-stream/internal/config"
	"dex-trade-stream/internal/hub"
	"dex-trade-stream/internal/ingestion"
	"dex-trade-stream/internal/oracle"
	"dex-trade-stream/internal/pricefeed"
	"dex-trade-stream/internal/sink"
	"dex-trade-stream/internal/solana"
	"dex-trade-stream/internal/storage"
	chstore "dex-trade-stream/internal/storage/clickhouse"
	"dex-trade-stream/internal/storage/memory"
	"dex-trade-stream/internal/storage/migrations"
	pgstore "dex-trade-stream/internal/storage/postgres"
)

const kafkaPartitions = 3

func newLogger(component string) *log.Logger {
	return log.New(os.Stdout, "["+component+"] ", log.LstdFlags|log.Lshortfile)
}

func main() {
	// Load .env file if exists
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	flag.StringVar(&cfg.StorageBackend, "storage", cfg.StorageBackend, "Trade storage backend (clickhouse, memory)")
	flag.StringVar(&cfg.SessionBackend, "sessions", cfg.SessionBackend, "Session storage backend (clickhouse, postgres, memory)")
	flag.Parse()

	logger := newLogger("server")

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	store, cleanup, err := createStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	sinks, cache, closeSinks := createSinks(ctx, cfg, logger)
	defer closeSinks()

	h := hub.New(hub.Options{
		Buffer: cfg.BroadcastBuffer,
		Logger: newLogger("hub"),
	})

	jupiter := oracle.NewJupiterClient(
		oracle.WithPriceURL(cfg.JupiterPriceURL),
		oracle.WithQuoteURL(cfg.JupiterQuoteURL),
	)

	tickerLogger := newLogger("ticker")
	book := pricefeed.NewBook(pricefeed.BookOptions{
		Source:   jupiter,
		Cache:    cache,
		Fallback: cfg.FallbackPrice,
		Logger:   tickerLogger,
	})
	ticker := pricefeed.NewTicker(pricefeed.TickerOptions{
		Selector:    h,
		Source:      jupiter,
		Broadcaster: h,
		Book:        book,
		Interval:    cfg.PriceInterval,
		Logger:      tickerLogger,
	})

	supervisorOpts := ingestion.SupervisorOptions{
		Programs:        cfg.DEXPrograms,
		Backoff:         ingestion.FixedBackoff{Delay: cfg.ReconnectDelay},
		Store:           store,
		Broadcaster:     h,
		Book:            book,
		Ticker:          ticker,
		Sinks:           sinks,
		TradeBuffer:     cfg.TradeBuffer,
		CleanupInterval: cfg.SessionCleanupInterval,
		Logger:          newLogger("ingest"),
	}
	if cfg.IngestionEnabled() {
		if err := withIngestion(&supervisorOpts, cfg); err != nil {
			logger.Fatalf("Failed to create ingestion: %v", err)
		}
		defer supervisorOpts.FetchPool.Release()
		logger.Printf("Monitoring DEX programs: %v", cfg.DEXPrograms)
	} else {
		logger.Println("SOLANA_RPC_ENDPOINT or SOLANA_WS_ENDPOINT not set, ingestion disabled")
	}
	supervisor := ingestion.NewSupervisor(supervisorOpts)

	authService, err := createAuth(cfg, store)
	if err != nil {
		logger.Fatalf("Failed to create auth: %v", err)
	}

	apiOpts := api.Options{
		Trades:   store,
		Hub:      h,
		Auth:     authService,
		Logger:   newLogger("api"),
		WSLogger: newLogger("ws"),
	}
	if cfg.IngestionEnabled() {
		apiOpts.Status = supervisor
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewServer(apiOpts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

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

	errCh := make(chan error, 2)

	go func() {
		logger.Printf("Starting HTTP server on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		err := supervisor.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("supervisor: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Printf("HTTP shutdown: %v", shutdownErr)
	}
	shutdownCancel()
	done <- err

	if err != nil {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// withIngestion adds the upstream subscriber and fetch pool to opts.
func withIngestion(opts *ingestion.SupervisorOptions, cfg *config.Config) error {
	ingestLogger := opts.Logger

	wsConfig := solana.DefaultWSConfig()
	wsConfig.ReadTimeout = cfg.WSReadTimeout
	wsConfig.Logger = ingestLogger

	opts.Subscriber = ingestion.NewSubscriber(ingestion.SubscriberOptions{
		Dial:   ingestion.WSDialer(cfg.WSEndpoint, &wsConfig),
		Dedup:  ingestion.NewSignatureSet(cfg.DedupCapacity),
		Logger: ingestLogger,
	})

	pool, err := ingestion.NewFetchPool(ingestion.FetchPoolOptions{
		Fetcher: solana.NewHTTPClient(cfg.RPCEndpoint),
		Workers: cfg.FetchWorkers,
		Logger:  ingestLogger,
	})
	if err != nil {
		return fmt.Errorf("create fetch pool: %w", err)
	}
	opts.FetchPool = pool
	return nil
}

// createStore builds the trade and session backends selected by cfg.
func createStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (storage.Store, func(), error) {
	var (
		composite storage.Composite
		closers   []func()
		chConn    *chstore.Conn
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	needClickhouse := cfg.StorageBackend == config.BackendClickhouse || cfg.SessionBackend == config.BackendClickhouse
	if needClickhouse {
		var err error
		if cfg.RunMigrations {
			chConn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		} else {
			chConn, err = chstore.NewConn(ctx, cfg.ClickhouseDSN)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		closers = append(closers, func() { chConn.Close() })
		logger.Println("Connected to ClickHouse")
	}

	switch cfg.StorageBackend {
	case config.BackendClickhouse:
		composite.TradeStore = chstore.NewTradeStore(chConn)
	default:
		logger.Println("Using in-memory trade storage")
		composite.TradeStore = memory.NewTradeStore()
	}

	switch cfg.SessionBackend {
	case config.BackendClickhouse:
		composite.SessionStore = chstore.NewSessionStore(chConn)
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if cfg.RunMigrations {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		composite.SessionStore = pgstore.NewSessionStore(pool)
		logger.Println("Connected to PostgreSQL")
	default:
		logger.Println("Using in-memory session storage")
		composite.SessionStore = memory.NewSessionStore()
	}

	return composite, cleanup, nil
}

// createSinks connects the optional downstream sinks. A sink that cannot be
// reached at startup is logged and skipped.
func createSinks(ctx context.Context, cfg *config.Config, logger *log.Logger) ([]ingestion.TradeSink, pricefeed.PriceCache, func()) {
	var (
		sinks   []ingestion.TradeSink
		cache   pricefeed.PriceCache
		closers []func() error
	)

	if len(cfg.KafkaBrokers) > 0 {
		if err := sink.EnsureTopic(ctx, cfg.KafkaBrokers[0], cfg.KafkaTopic, kafkaPartitions); err != nil {
			logger.Printf("Kafka topic %s: %v", cfg.KafkaTopic, err)
		}
		publisher := sink.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, publisher)
		closers = append(closers, publisher.Close)
		logger.Printf("Publishing trades to Kafka topic %s", cfg.KafkaTopic)
	}

	if cfg.RedisURL != "" {
		redisCache, err := sink.NewRedisCache(ctx, cfg.RedisURL, cfg.RedisTTL)
		if err != nil {
			logger.Printf("Redis disabled: %v", err)
		} else {
			sinks = append(sinks, redisCache)
			cache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Println("Caching latest trades in Redis")
		}
	}

	return sinks, cache, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Printf("close sink: %v", err)
			}
		}
	}
}

// createAuth builds the sign-in service. Without a secret, memory session
// mode signs with a random per-process key.
func createAuth(cfg *config.Config, sessions storage.SessionStore) (*auth.Service, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		nonce, err := auth.NewNonce()
		if err != nil {
			return nil, err
		}
		secret = nonce
	}

	issuer, err := auth.NewIssuer(secret, cfg.JWTTTL)
	if err != nil {
		return nil, err
	}
	return auth.NewService(issuer, sessions, newLogger("auth")), nil
}
