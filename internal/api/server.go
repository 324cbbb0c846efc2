// Package api serves the HTTP and WebSocket surface: trade queries, the
// live trade stream, wallet sign-in and operational endpoints.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dex-trade-stream/internal/auth"
	"dex-trade-stream/internal/hub"
	"dex-trade-stream/internal/observability"
	"dex-trade-stream/internal/storage"
)

// StatusSource reports ingestion state for /status.
type StatusSource interface {
	UpstreamConnected() bool
	LastTradeAt() time.Time
}

// Options contains configuration for creating a Server.
type Options struct {
	Trades storage.TradeStore
	Hub    *hub.Hub
	Auth   *auth.Service // nil disables the /auth/verify and /auth/session routes
	Status StatusSource  // nil while ingestion is disabled

	// PingInterval is how often idle client sockets are pinged. Default: DefaultPingInterval.
	PingInterval time.Duration

	Logger   *log.Logger
	WSLogger *log.Logger
	Now      func() time.Time
}

// Server holds the handlers' dependencies.
type Server struct {
	trades       storage.TradeStore
	hub          *hub.Hub
	auth         *auth.Service
	status       StatusSource
	pingInterval time.Duration
	logger       *log.Logger
	wsLogger     *log.Logger
	now          func() time.Time
	started      time.Time
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	wsLogger := opts.WSLogger
	if wsLogger == nil {
		wsLogger = logger
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	pingInterval := opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}

	return &Server{
		trades:       opts.Trades,
		hub:          opts.Hub,
		auth:         opts.Auth,
		status:       opts.Status,
		pingInterval: pingInterval,
		logger:       logger,
		wsLogger:     wsLogger,
		now:          now,
		started:      now(),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", observability.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/trades", s.handleTrades)
		r.Get("/ohlcv", s.handleOHLCV)
		r.Get("/stats", s.handleStats)
	})

	r.Get("/ws/trades", s.handleWS)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/nonce", s.handleNonce)
		r.Post("/verify", s.handleVerify)
		r.Get("/session", s.handleSession)
	})

	return r
}

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, title, message string) {
	s.writeJSON(w, status, errorResponse{Error: title, Message: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status            string     `json:"status"`
	Uptime            string     `json:"uptime"`
	Clients           int        `json:"clients"`
	SelectedPair      string     `json:"selected_pair"`
	IngestionEnabled  bool       `json:"ingestion_enabled"`
	UpstreamConnected bool       `json:"upstream_connected"`
	LastTradeAt       *time.Time `json:"last_trade_at,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:       "running",
		Uptime:       s.now().Sub(s.started).Round(time.Second).String(),
		Clients:      s.hub.Count(),
		SelectedPair: s.hub.SelectedPair(),
	}

	if s.status != nil {
		resp.IngestionEnabled = true
		resp.UpstreamConnected = s.status.UpstreamConnected()
		if last := s.status.LastTradeAt(); !last.IsZero() {
			resp.LastTradeAt = &last
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}
