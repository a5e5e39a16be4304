// Package livefeed connects the metric graph to a websocket bar feed.
package livefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market-metrics-lab/internal/domain"
)

// Config configures feed client behavior.
type Config struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// OnReconnect runs after every successful reconnect.
	OnReconnect func()
}

// DefaultConfig returns default feed client configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client is a websocket bar feed client. It reconnects with exponential
// backoff, resubscribes the active streams after every reconnect, and
// delivers only final bars to the Bars channel.
type Client struct {
	endpoint string
	config   Config
	log      *zap.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// subs stores the active streams for resubscription after reconnect
	subs   map[domain.SymbolID]struct{}
	subsMu sync.RWMutex

	bars chan *domain.Bar

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewClient creates a feed client and connects to the endpoint.
func NewClient(ctx context.Context, endpoint string, config *Config, log *zap.Logger) (*Client, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}

	c := &Client{
		endpoint: endpoint,
		config:   cfg,
		log:      log,
		subs:     make(map[domain.SymbolID]struct{}),
		// Blocking send ensures no bar loss; buffer absorbs bursts.
		bars: make(chan *domain.Bar, 4096),
		done: make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes the websocket connection.
func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// Subscribe registers a bar stream and sends the subscribe request.
// Subscribing an already-active stream is a no-op.
func (c *Client) Subscribe(sym domain.SymbolID) error {
	if c.closed.Load() {
		return fmt.Errorf("client closed")
	}
	if err := sym.Validate(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	c.subsMu.Lock()
	if _, exists := c.subs[sym]; exists {
		c.subsMu.Unlock()
		return nil
	}
	c.subs[sym] = struct{}{}
	c.subsMu.Unlock()

	if err := c.writeSubscribe([]domain.SymbolID{sym}); err != nil {
		return fmt.Errorf("subscribe %s: %w", sym, err)
	}
	return nil
}

// Bars returns the channel of final bars. It is closed by Close.
func (c *Client) Bars() <-chan *domain.Bar {
	return c.bars
}

// Close closes the connection and the bars channel.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	close(c.bars)
	return nil
}

// readLoop reads messages and dispatches bars until closed.
func (c *Client) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *Client) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.log.Warn("feed reconnect failed", zap.Error(err))
		// Will retry on next read error
		return
	}

	c.log.Info("feed reconnected", zap.String("endpoint", c.endpoint))
	c.resubscribeAll()

	if c.config.OnReconnect != nil {
		c.config.OnReconnect()
	}
}

// resubscribeAll re-sends the subscribe request for every active stream.
func (c *Client) resubscribeAll() {
	c.subsMu.RLock()
	syms := make([]domain.SymbolID, 0, len(c.subs))
	for sym := range c.subs {
		syms = append(syms, sym)
	}
	c.subsMu.RUnlock()

	if len(syms) == 0 {
		return
	}

	if err := c.writeSubscribe(syms); err != nil {
		c.log.Warn("resubscribe failed", zap.Error(err), zap.Int("streams", len(syms)))
	}
}

// writeSubscribe sends one subscribe request for the given streams.
func (c *Client) writeSubscribe(syms []domain.SymbolID) error {
	req := subscribeRequest{Op: "subscribe", Streams: make([]streamID, 0, len(syms))}
	for _, sym := range syms {
		req.Streams = append(req.Streams, streamID{
			ProductType:      string(sym.ProductType),
			Symbol:           sym.Symbol,
			FrequencySeconds: sym.Frequency,
		})
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// handleMessage parses one feed message and dispatches final bars.
func (c *Client) handleMessage(message []byte) {
	var msg barMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.log.Debug("unparseable feed message", zap.Error(err))
		return
	}
	if msg.Type != "bar" {
		return
	}
	if !msg.Final {
		// Partial bars mutate until the interval closes; only closed
		// bars enter the graph.
		return
	}

	sym := domain.SymbolID{
		ProductType: domain.ProductType(msg.ProductType),
		Symbol:      msg.Symbol,
		Frequency:   msg.FrequencySeconds,
	}
	if err := sym.Validate(); err != nil {
		c.log.Debug("bar message with bad stream identity", zap.Error(err))
		return
	}

	bar := &domain.Bar{
		Sym:         sym,
		TimestampMs: msg.TimestampMs,
		Open:        valueOrSentinel(msg.Open),
		High:        valueOrSentinel(msg.High),
		Low:         valueOrSentinel(msg.Low),
		Close:       valueOrSentinel(msg.Close),
		Volume:      valueOrSentinel(msg.Volume),
	}

	// Block until we can send - never drop bars
	select {
	case c.bars <- bar:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
					c.log.Debug("ping failed", zap.Error(err))
				}
			}
			c.connMu.Unlock()
		}
	}
}

func valueOrSentinel(v *float64) float64 {
	if v == nil {
		return domain.Sentinel()
	}
	return *v
}

// Feed message types

type subscribeRequest struct {
	Op      string     `json:"op"`
	Streams []streamID `json:"streams"`
}

type streamID struct {
	ProductType      string `json:"product_type"`
	Symbol           string `json:"symbol"`
	FrequencySeconds int    `json:"frequency_seconds"`
}

type barMessage struct {
	Type             string   `json:"type"`
	ProductType      string   `json:"product_type"`
	Symbol           string   `json:"symbol"`
	FrequencySeconds int      `json:"frequency_seconds"`
	TimestampMs      int64    `json:"timestamp_ms"`
	Open             *float64 `json:"open"`
	High             *float64 `json:"high"`
	Low              *float64 `json:"low"`
	Close            *float64 `json:"close"`
	Volume           *float64 `json:"volume"`
	Final            bool     `json:"final"`
}
