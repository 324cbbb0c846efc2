package solana

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClientClosed is returned when operating on a closed client.
var ErrClientClosed = errors.New("client closed")

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// HandshakeTimeout bounds the initial dial.
	HandshakeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages. Zero disables it.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription ack.
	SubscribeTimeout time.Duration
	// BufferSize is the per-subscription notification buffer.
	BufferSize int
	// Logger receives connection diagnostics. Defaults to log.Default().
	Logger *log.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
		BufferSize:       10000,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
// A client serves a single connection; it never reconnects on its own.
// When the socket fails, every subscription channel is closed and Done fires.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig
	logger   *log.Logger

	conn      *websocket.Conn
	writeMu   sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to channel. Only readLoop sends or closes.
	subs   map[int64]chan LogNotification
	subsMu sync.RWMutex

	// pendingSubs maps request ID to a subscribe call awaiting its ack
	pendingSubs   map[uint64]*pendingSub
	pendingSubsMu sync.Mutex

	// done signals local shutdown; ended fires when readLoop exits
	done     chan struct{}
	ended    chan struct{}
	endErr   error
	endErrMu sync.Mutex
	wg       sync.WaitGroup
}

type pendingSub struct {
	ch     chan LogNotification
	result chan subscribeResult
}

type subscribeResult struct {
	subID int64
	err   error
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = 30 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		logger:      logger,
		conn:        conn,
		subs:        make(map[int64]chan LogNotification),
		pendingSubs: make(map[uint64]*pendingSub),
		done:        make(chan struct{}),
		ended:       make(chan struct{}),
	}

	if cfg.ReadTimeout > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		})
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// SubscribeLogs sends a logsSubscribe request and waits for its ack.
func (c *WSClientImpl) SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	select {
	case <-c.ended:
		return nil, c.endReason()
	default:
	}

	reqID := c.requestID.Add(1)

	mentionsFilter := make(map[string]interface{})
	if len(filter.Mentions) > 0 {
		mentionsFilter["mentions"] = filter.Mentions
	} else {
		mentionsFilter["all"] = nil
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentionsFilter,
			map[string]string{"commitment": "confirmed"},
		},
	}

	// The channel is registered by readLoop when the ack arrives, so
	// notifications following the ack are never missed.
	pending := &pendingSub{
		ch:     make(chan LogNotification, c.config.BufferSize),
		result: make(chan subscribeResult, 1),
	}
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = pending
	c.pendingSubsMu.Unlock()

	if err := c.writeJSON(req); err != nil {
		c.dropPending(reqID)
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case res := <-pending.result:
		if res.err != nil {
			return nil, res.err
		}
		return pending.ch, nil
	case <-timer.C:
		c.dropPending(reqID)
		return nil, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.ended:
		return nil, c.endReason()
	case <-ctx.Done():
		c.dropPending(reqID)
		return nil, ctx.Err()
	}
}

// Done is closed once readLoop has exited.
func (c *WSClientImpl) Done() <-chan struct{} {
	return c.ended
}

// Err returns why the connection ended, nil after a local Close.
func (c *WSClientImpl) Err() error {
	c.endErrMu.Lock()
	defer c.endErrMu.Unlock()
	return c.endErr
}

// Close closes the WebSocket connection.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.conn.Close()

	c.wg.Wait()
	return nil
}

func (c *WSClientImpl) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

func (c *WSClientImpl) dropPending(reqID uint64) {
	c.pendingSubsMu.Lock()
	delete(c.pendingSubs, reqID)
	c.pendingSubsMu.Unlock()
}

func (c *WSClientImpl) endReason() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrClientClosed
}

// readLoop reads frames until the socket fails or the client is closed.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()
	defer c.shutdown()

	for {
		if c.config.ReadTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.setEndErr(fmt.Errorf("websocket read: %w", err))
			}
			return
		}

		frame, err := DecodeFrame(message)
		if err != nil {
			c.logger.Printf("ignoring malformed frame: %v", err)
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *WSClientImpl) setEndErr(err error) {
	c.endErrMu.Lock()
	c.endErr = err
	c.endErrMu.Unlock()
}

// shutdown closes subscription channels and fails pending subscribes.
func (c *WSClientImpl) shutdown() {
	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id := range c.pendingSubs {
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	close(c.ended)
	// Unblock pingLoop when the socket died without a local Close.
	if !c.closed.Load() {
		c.conn.Close()
	}
}

func (c *WSClientImpl) handleFrame(frame Frame) {
	switch frame.Kind {
	case FrameAck:
		c.handleAck(frame.Ack)
	case FrameLogs:
		c.handleLogsNotification(frame.Logs)
	case FrameError:
		c.handleError(frame.Error)
	}
}

// handleAck registers the subscription channel under its provider id.
func (c *WSClientImpl) handleAck(ack *SubscribeAck) {
	c.pendingSubsMu.Lock()
	pending, ok := c.pendingSubs[ack.RequestID]
	if ok {
		delete(c.pendingSubs, ack.RequestID)
	}
	c.pendingSubsMu.Unlock()

	if !ok {
		return
	}

	c.subsMu.Lock()
	c.subs[ack.SubscriptionID] = pending.ch
	c.subsMu.Unlock()

	pending.result <- subscribeResult{subID: ack.SubscriptionID}
}

func (c *WSClientImpl) handleError(fe *FrameErr) {
	c.pendingSubsMu.Lock()
	pending, ok := c.pendingSubs[fe.RequestID]
	if ok {
		delete(c.pendingSubs, fe.RequestID)
	}
	c.pendingSubsMu.Unlock()

	if !ok {
		c.logger.Printf("error frame: code=%d msg=%s", fe.Code, fe.Message)
		return
	}
	err := fe.RPCError
	pending.result <- subscribeResult{err: fmt.Errorf("subscribe rejected: %w", &err)}
}

// handleLogsNotification dispatches log notification to subscriber.
func (c *WSClientImpl) handleLogsNotification(notif *LogNotification) {
	c.subsMu.RLock()
	ch, ok := c.subs[notif.SubscriptionID]
	c.subsMu.RUnlock()

	if !ok {
		return
	}

	// Block until we can send - never drop events
	select {
	case ch <- *notif:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.ended:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				// reader observes the dead socket
				continue
			}
		}
	}
}

var _ WSClient = (*WSClientImpl)(nil)
