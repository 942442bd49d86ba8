// Package websocket manages the push channel to an exchange: a single
// connection multiplexing topic streams (orders, positions) with
// heartbeating and bounded reconnection. The store subscribes its cache
// callbacks here; nothing in this package interprets message payloads.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/gorilla/websocket"
	"github.com/veiloq/exchange-bridge/pkg/logging"
)

// MessageHandler is a callback for incoming messages on one topic.
type MessageHandler func(message []byte)

// WSConnector defines the interface for managing a push channel
type WSConnector interface {
	// Connect establishes the WebSocket connection
	Connect(ctx context.Context) error

	// Close cleanly closes the WebSocket connection
	Close() error

	// Subscribe adds a message handler for a topic
	Subscribe(topic string, handler MessageHandler) error

	// Unsubscribe removes a message handler for a topic
	Unsubscribe(topic string) error

	// Send sends a message through the connection
	Send(message interface{}) error

	// IsConnected returns the current connection status
	IsConnected() bool
}

// Config holds WebSocket connection configuration
type Config struct {
	URL               string
	HeartbeatInterval time.Duration
	ReconnectInterval time.Duration
	MaxRetries        int
}

// connector implements the WSConnector interface over gorilla/websocket
type connector struct {
	config Config
	conn   *websocket.Conn

	handlers   map[string]MessageHandler
	handlersMu sync.RWMutex
	writeMu    sync.Mutex

	connected atomic.Bool
	done      chan struct{}
	doneMu    sync.Mutex
	closed    bool

	reconnectMu  sync.Mutex
	reconnecting bool

	logger logging.Logger
}

// NewConnector creates a WebSocket connector with the given configuration
func NewConnector(config Config, logger logging.Logger) WSConnector {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &connector{
		config:   config,
		handlers: make(map[string]MessageHandler),
		logger:   logger,
	}
}

// Connect establishes the connection and starts the read pump and
// heartbeat routines. It retries up to MaxRetries with the configured
// reconnect interval between attempts.
func (c *connector) Connect(ctx context.Context) error {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	if c.connected.Load() {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("context already cancelled: %w", ctx.Err())
	}

	c.logger.Debug("attempting websocket connection",
		logging.String("url", c.config.URL),
		logging.Duration("heartbeat", c.config.HeartbeatInterval),
	)

	var lastErr error
	for attempt := 1; ; attempt++ {
		if attempt > c.config.MaxRetries {
			return fmt.Errorf("max retries exceeded: %w", lastErr)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
		if err != nil {
			lastErr = err
			c.logger.Warn("connection attempt failed",
				logging.Int("attempt", attempt),
				logging.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.ReconnectInterval):
				continue
			}
		}

		c.conn = conn
		c.connected.Store(true)

		c.doneMu.Lock()
		c.done = make(chan struct{})
		c.closed = false
		c.doneMu.Unlock()

		go c.readPump(ctx)
		go c.heartbeat()
		go func() {
			select {
			case <-ctx.Done():
				c.logger.Info("context cancelled, closing connection")
				c.Close()
			case <-c.done:
			}
		}()

		c.logger.Info("websocket connected")
		return nil
	}
}

func (c *connector) readPump(ctx context.Context) {
	defer func() {
		c.connected.Store(false)
		if c.conn != nil {
			_ = c.conn.Close()
		}

		c.doneMu.Lock()
		if !c.closed {
			close(c.done)
			c.closed = true
		}
		c.doneMu.Unlock()

		if !c.reconnecting && ctx.Err() == nil {
			go c.reconnect()
		}
	}()

	deadline := c.config.HeartbeatInterval * 3
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			c.conn.SetReadDeadline(time.Now().Add(deadline))
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.Warn("read error", logging.Error(err))
				}
				return
			}
			c.dispatch(message)
		}
	}
}

// dispatch routes a raw message to the handler registered for its topic.
// Handlers run on their own goroutine so a slow consumer cannot stall
// the read pump.
func (c *connector) dispatch(message []byte) {
	var msg struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal message", logging.Error(err))
		return
	}

	c.handlersMu.RLock()
	handler, exists := c.handlers[msg.Topic]
	c.handlersMu.RUnlock()
	if !exists {
		return
	}

	go func(topic string, data []byte, h MessageHandler) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("handler panic recovered",
					logging.String("topic", topic),
					logging.String("panic", fmt.Sprintf("%v", r)),
				)
			}
		}()
		h(data)
	}(msg.Topic, message, handler)
}

func (c *connector) heartbeat() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			if !c.connected.Load() {
				c.writeMu.Unlock()
				return
			}
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *connector) reconnect() {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			return c.Connect(ctx)
		},
		retry.Attempts(uint(c.config.MaxRetries)),
		retry.Delay(c.config.ReconnectInterval),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("reconnection attempt failed",
				logging.Int("attempt", int(n+1)),
				logging.Error(err))
		}),
	)
	if err != nil {
		c.logger.Error("reconnection failed", logging.Error(err))
		return
	}

	c.logger.Info("reconnection successful")
}

// Subscribe implements WSConnector interface
func (c *connector) Subscribe(topic string, handler MessageHandler) error {
	if !c.IsConnected() {
		return fmt.Errorf("websocket not connected")
	}

	c.handlersMu.Lock()
	c.handlers[topic] = handler
	c.handlersMu.Unlock()
	return nil
}

// Unsubscribe implements WSConnector interface
func (c *connector) Unsubscribe(topic string) error {
	c.handlersMu.Lock()
	delete(c.handlers, topic)
	c.handlersMu.Unlock()
	return nil
}

// Send implements WSConnector interface
func (c *connector) Send(message interface{}) error {
	if !c.connected.Load() {
		return fmt.Errorf("websocket not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if data, ok := message.([]byte); ok {
		return c.conn.WriteMessage(websocket.TextMessage, data)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// IsConnected implements WSConnector interface
func (c *connector) IsConnected() bool {
	return c.connected.Load()
}

// Close implements WSConnector interface
func (c *connector) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.doneMu.Lock()
	wasClosed := c.closed
	if !c.closed && c.done != nil {
		close(c.done)
		c.closed = true
	}
	c.doneMu.Unlock()

	if wasClosed {
		return nil
	}

	c.connected.Store(false)

	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed connection"))
		time.Sleep(100 * time.Millisecond)

		err := c.conn.Close()
		if err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
			return err
		}
	}

	return nil
}
