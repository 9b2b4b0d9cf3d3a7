// Package wsclient implements the generic WebSocket lifecycle contract
// shared by every exchange adapter: idle -> connecting -> open -> closed,
// an asynchronous initial connect started by Start, a periodic health check
// on the client's own ticker that reconnects on a closed socket, and
// send/ping/pong primitives. Exchange
// adapters embed a Client and supply the callbacks; they do not reimplement
// reconnect or health-check logic.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the WS connection lifecycle state.
type State int

const (
	Idle State = iota
	Connecting
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds the callbacks and tuning knobs for one WS client instance.
type Config struct {
	URL string

	// Connected fires once per successful handshake.
	Connected func()
	// Process handles a decoded JSON text frame.
	Process func(value any)
	// ProcessBinary handles a raw binary frame (before any decompression —
	// callers that need raw-deflate decompression do it here).
	ProcessBinary func(data []byte)

	// HealthInterval controls how often the health check inspects the
	// socket and triggers reconnection; defaults to 10s per spec.
	HealthInterval time.Duration
	// DialTimeout bounds the initial handshake.
	DialTimeout time.Duration

	Logger *slog.Logger
}

// Client manages one WebSocket connection's lifecycle.
type Client struct {
	cfg Config

	mu    sync.Mutex
	conn  *websocket.Conn
	state State

	reconnectMu sync.Mutex // named mutex serializing overlapping reconnect attempts
	reconnecting bool

	logger *slog.Logger
}

// New constructs a Client. Call Start to schedule the initial connect and
// begin the health-check loop; both run until ctx is cancelled.
func New(cfg Config) *Client {
	if cfg.HealthInterval == 0 {
		cfg.HealthInterval = 10 * time.Second
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, state: Idle, logger: logger.With("component", "wsclient")}
}

// Start schedules the initial connect and launches the health-check loop.
// Returns immediately.
func (c *Client) Start(ctx context.Context) {
	go c.reconnect(ctx, false)
	go c.healthLoop(ctx)
}

func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.State() == Closed {
				c.reconnect(ctx, true)
			}
		}
	}
}

// reconnect dials a fresh connection. drop controls what a call does when
// another reconnect already holds the mutex: with drop=true (the health
// check) it returns immediately without dialing, so overlapping health
// checks cannot double reconnect; with drop=false (the initial connect from
// Start) it waits for the mutex and then dials.
func (c *Client) reconnect(ctx context.Context, drop bool) {
	if drop {
		if !c.reconnectMu.TryLock() {
			return
		}
	} else {
		c.reconnectMu.Lock()
	}
	defer c.reconnectMu.Unlock()

	c.setState(Connecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.URL, nil)
	if err != nil {
		c.logger.Warn("websocket dial failed", "url", c.cfg.URL, "error", err)
		c.setState(Closed)
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(Open)

	if c.cfg.Connected != nil {
		c.cfg.Connected()
	}

	go c.readLoop(ctx, conn)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("websocket read error, marking closed", "error", err)
			c.setState(Closed)
			return
		}

		switch msgType {
		case websocket.TextMessage:
			var value any
			if err := json.Unmarshal(data, &value); err != nil {
				c.logger.Warn("malformed json frame, dropping", "error", err)
				continue
			}
			if c.cfg.Process != nil {
				c.cfg.Process(value)
			}
		case websocket.BinaryMessage:
			if c.cfg.ProcessBinary != nil {
				c.cfg.ProcessBinary(data)
			}
		case websocket.CloseMessage:
			c.setState(Closed)
			return
		case websocket.PongMessage:
			// no-op: pong is surfaced via ReadMessage's control handler in
			// gorilla/websocket, not this switch; kept for symmetry with
			// the text/binary/close contract.
		}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send serializes value as JSON and writes it as a text frame. It fails
// if the socket is not open.
func (c *Client) Send(value any) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != Open || conn == nil {
		return fmt.Errorf("wsclient: socket not open (state=%s)", state)
	}
	return conn.WriteJSON(value)
}

// SendText writes a raw text frame, bypassing JSON encoding, for
// exchange-specific plain-text messages such as keepalive strings.
func (c *Client) SendText(text string) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != Open || conn == nil {
		return fmt.Errorf("wsclient: socket not open (state=%s)", state)
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Ping sends a protocol-level ping frame.
func (c *Client) Ping() error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != Open || conn == nil {
		return fmt.Errorf("wsclient: socket not open (state=%s)", state)
	}
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// Pong sends a protocol-level pong frame, acknowledging a received ping.
func (c *Client) Pong() error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != Open || conn == nil {
		return fmt.Errorf("wsclient: socket not open (state=%s)", state)
	}
	return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(5*time.Second))
}

// Close closes the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.state = Closed
	return err
}
