/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 VidaLink Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package signaling maintains the long-lived websocket channel to the
// VidaLink relay. The channel is reconnectable: on a read error the client
// dials again with exponential backoff and re-joins every call room it was
// in, so coordinators never observe the gap.
package signaling

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// TokenSource provides the bearer credential used to authenticate the dial.
// *credentials.Manager satisfies this; the indirection is what lets a
// refreshed token take effect on the next (re)connection.
type TokenSource interface {
	Token() string
}

// Config holds the configuration for the signaling client.
type Config struct {
	HandshakeTimeout            time.Duration // Timeout for the websocket dial handshake
	PingInterval                time.Duration // Interval between ping messages
	PongTimeout                 time.Duration // Timeout for receiving a pong response
	BackoffTimeMax              time.Duration // Maximum time between connection attempts
	BackoffTimeReset            time.Duration // Initial time before the first retry
	MaxRetries                  int           // Number of times to retry before giving up
	InitialConnectionMaxRetries int           // Retry budget for the very first connection
}

// DefaultConfig returns the default configuration for the signaling client.
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout:            10 * time.Second,
		PingInterval:                30 * time.Second,
		PongTimeout:                 10 * time.Second,
		BackoffTimeMax:              32 * time.Second,
		BackoffTimeReset:            1 * time.Second,
		MaxRetries:                  3,
		InitialConnectionMaxRetries: 5,
	}
}

// Client is the signaling channel client.
type Client struct {
	wsURL  string
	tokens TokenSource
	config *Config

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	connecting   bool
	hasConnected bool
	handlers     map[EventType][]Handler
	rooms        map[string]struct{}
	closeCh      chan struct{}

	writeMu sync.Mutex
}

// New creates a signaling client for the given websocket URL. The token
// source is consulted on every dial, so credential refreshes are picked up
// by the next connection attempt.
func New(wsURL string, tokens TokenSource, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		wsURL:    wsURL,
		tokens:   tokens,
		config:   config,
		handlers: make(map[EventType][]Handler),
		rooms:    make(map[string]struct{}),
		closeCh:  make(chan struct{}),
	}
}

// On registers an event handler for a specific event type. The wildcard
// type "*" receives every event.
func (c *Client) On(eventType EventType, handler Handler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.handlers[eventType] = append(c.handlers[eventType], handler)
	c.mu.Unlock()
}

// IsConnected returns whether the channel is currently connected.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect establishes the websocket connection, retrying with exponential
// backoff up to the configured budget.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.connecting {
		c.mu.Unlock()
		return fmt.Errorf("connection attempt already in progress")
	}
	c.connecting = true
	c.mu.Unlock()

	return c.connectWithBackoff()
}

// Disconnect closes the websocket connection. It is safe to call at any
// time, including when already disconnected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.connected && !c.connecting {
		c.mu.Unlock()
		return nil
	}

	// Signal all goroutines to stop
	close(c.closeCh)

	// Create a new channel for future connections
	c.closeCh = make(chan struct{})

	conn := c.conn
	c.conn = nil
	c.connected = false
	c.connecting = false
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Disconnected by client"))
		_ = conn.Close()
	}

	return nil
}

// Send marshals and transmits an event over the channel.
func (c *Client) Send(ev *Event) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("signaling channel is not connected")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("error marshaling event: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// JoinCall enters the room for callID and records the membership so it is
// re-established automatically after a reconnect.
func (c *Client) JoinCall(callID string) error {
	c.mu.Lock()
	c.rooms[callID] = struct{}{}
	c.mu.Unlock()

	return c.Send(&Event{Type: EventJoinCall, CallID: callID})
}

// ForgetCall drops the room membership bookkeeping for callID. No leave
// event exists on the wire; the relay tears rooms down server-side when the
// call ends. Forgetting only stops the client from re-joining a dead room
// after a reconnect.
func (c *Client) ForgetCall(callID string) {
	c.mu.Lock()
	delete(c.rooms, callID)
	c.mu.Unlock()
}

// connectWithBackoff attempts to connect with exponential backoff.
func (c *Client) connectWithBackoff() error {
	c.mu.Lock()
	closeCh := c.closeCh
	maxRetries := c.config.MaxRetries
	if !c.hasConnected {
		maxRetries = c.config.InitialConnectionMaxRetries
	}
	c.mu.Unlock()

	backoff := c.config.BackoffTimeReset
	retries := 0

	var err error
	for retries <= maxRetries {
		err = c.attemptConnection()
		if err == nil {
			return nil
		}

		retries++
		if retries > maxRetries {
			break
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > c.config.BackoffTimeMax {
				backoff = c.config.BackoffTimeMax
			}
		case <-closeCh:
			return nil // Stopped by user
		}
	}

	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()
	return fmt.Errorf("failed to connect after %d attempts: %v", retries, err)
}

// attemptConnection makes a single dial attempt.
func (c *Client) attemptConnection() error {
	headers := http.Header{}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			headers.Set("Authorization", "Bearer "+token)
		}
	}
	headers.Set("TrackingID", fmt.Sprintf("vidalink-go-sdk_%s", uuid.New().String()))

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	conn, _, err := dialer.Dial(c.wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to connect to signaling channel: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Time{})
	})

	// Each connection generation owns its own done channel so a reconnect
	// never reuses one an earlier listen loop has already closed.
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.connecting = false
	c.hasConnected = true
	rooms := make([]string, 0, len(c.rooms))
	for callID := range c.rooms {
		rooms = append(rooms, callID)
	}
	c.mu.Unlock()

	// Re-enter every room this client was in before the connection dropped.
	for _, callID := range rooms {
		if err := c.Send(&Event{Type: EventJoinCall, CallID: callID}); err != nil {
			log.Printf("signaling: failed to re-join room %s: %v", callID, err)
		}
	}

	go c.startPingPong(conn, done)
	go c.listen(conn, done)

	return nil
}

// listen reads events from the websocket and dispatches them. Dispatch is
// synchronous: events are handled one at a time in arrival order, which is
// what preserves per-call FIFO ordering for the coordinators.
func (c *Client) listen(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.connected = false
		}
		c.mu.Unlock()
		close(done)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.handleConnectionError(err)
			return
		}

		var event Event
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}

		c.dispatch(&event)
	}
}

// dispatch calls the handlers registered for the event's type, then any
// wildcard handlers, in registration order.
func (c *Client) dispatch(event *Event) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.handlers[event.Type])+len(c.handlers["*"]))
	handlers = append(handlers, c.handlers[event.Type]...)
	handlers = append(handlers, c.handlers["*"]...)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// handleConnectionError triggers reconnection unless the client was
// deliberately disconnected.
func (c *Client) handleConnectionError(err error) {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	closeCh := c.closeCh
	c.mu.Unlock()

	if !wasConnected {
		return
	}

	select {
	case <-closeCh:
		// Deliberate disconnect, don't reconnect
	default:
		log.Printf("signaling: connection lost (%v), reconnecting", err)
		go c.reconnect()
	}
}

// reconnect re-dials after an unexpected connection loss.
func (c *Client) reconnect() {
	c.mu.Lock()
	if c.connected || c.connecting {
		c.mu.Unlock()
		return
	}
	c.connecting = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	_ = c.connectWithBackoff()
}

// startPingPong keeps the connection alive and detects dead peers.
func (c *Client) startPingPong(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ping(conn); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// ping sends a ping frame and arms the pong deadline.
func (c *Client) ping(conn *websocket.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PongTimeout)); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.PingMessage, []byte(fmt.Sprintf("%d", time.Now().UnixMilli())))
}
