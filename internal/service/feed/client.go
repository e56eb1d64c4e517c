package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client implements a MarketStream over the upstream quote socket.
// Quote data arrives as binary frames; the text side of the socket is
// a control channel carrying heartbeats and JSON error frames.
type Client struct {
	logger         *logger.Logger
	apiKey         string
	websocketURL   string
	symbols        []string
	tokens         map[string]string // token -> symbol
	reconnectDelay time.Duration
	pingInterval   time.Duration
	metrics        drepo.Metrics

	// mu guards conn and connected and serializes writes; gorilla
	// connections allow one concurrent writer.
	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// errorFrame is the JSON error payload on the text control channel.
type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New creates a MarketStream backed by the upstream quote socket.
func New(lgr *logger.Logger, apiKey, websocketURL string, symbols []string, tokens map[string]string,
	reconnectDelay, pingInterval time.Duration, metrics drepo.Metrics) drepo.MarketStream {
	return &Client{
		logger:         lgr.With("feed"),
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		tokens:         tokens,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		metrics:        metrics,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.logger.Info("feed connected", logger.String("url", c.websocketURL))
	return nil
}

// Subscribe requests quote frames for the configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	req := map[string]interface{}{
		"action":  "subscribe",
		"mode":    ModeQuote,
		"symbols": c.symbols,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return fmt.Errorf("feed not connected")
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.logger.Info("feed subscribed", logger.Strings("symbols", c.symbols))
	return nil
}

// writeText sends one text frame under the write lock.
func (c *Client) writeText(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Read streams normalized ticks and transport errors. Malformed
// frames are dropped and counted, never fatal to the stream.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	// heartbeat loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.writeText([]byte("ping"))
			}
		}
	}()

	// read loop
	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			conn := c.current()
			if conn == nil {
				errs <- fmt.Errorf("feed conn nil")
				return
			}
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("feed read: %w", err)
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				tick, err := DecodeFrame(data, c.tokens)
				if err != nil {
					c.metrics.RecordError("feed_malformed_frame")
					c.logger.Warn("dropping malformed frame", logger.Error(err))
					continue
				}
				select {
				case ticks <- tick:
				default:
					// drop on backpressure
					c.metrics.RecordError("feed_backpressure_drop")
				}
			case websocket.TextMessage:
				c.handleControl(data)
			}
		}
	}()

	return ticks, errs
}

func (c *Client) handleControl(data []byte) {
	if string(data) == "ping" {
		_ = c.writeText([]byte("pong"))
		return
	}
	if string(data) == "pong" {
		return
	}
	var ef errorFrame
	if err := json.Unmarshal(data, &ef); err != nil {
		c.metrics.RecordError("feed_control_unknown")
		return
	}
	c.metrics.RecordError("feed_upstream_error")
	c.logger.Warn("upstream error frame",
		logger.String("code", ef.Code),
		logger.String("message", ef.Message))
}

// Reconnect closes and reconnects after the configured delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
