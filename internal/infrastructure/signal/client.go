package signal

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"peerlens/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Reconnector drives the reconnection policy when the signaling channel
// drops. The connection lifecycle machine implements it.
type Reconnector interface {
	RunReconnect(ctx context.Context, dial func(ctx context.Context) error) error
}

// Client manages a peer's signaling channel to the relay.
type Client struct {
	relayURL  string
	sessionID domain.SessionID
	role      domain.Role
	handler   func(ctx context.Context, msg domain.SignalMessage)

	mu   sync.Mutex
	conn *websocket.Conn

	writeTimeout time.Duration
	logger       *zap.SugaredLogger
}

func NewClient(relayURL string, sessionID domain.SessionID, role domain.Role, handler func(ctx context.Context, msg domain.SignalMessage), logger *zap.Logger) *Client {
	return &Client{
		relayURL:     relayURL,
		sessionID:    sessionID,
		role:         role,
		handler:      handler,
		writeTimeout: 10 * time.Second,
		logger:       logger.Sugar(),
	}
}

// dial connects to the relay and performs the join handshake.
func (c *Client) dial(ctx context.Context) error {
	u, err := url.Parse(c.relayURL)
	if err != nil {
		return fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("session", string(c.sessionID))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return domain.NewTransportError(fmt.Errorf("signaling dial: %w", err))
	}

	join := domain.SignalMessage{Type: domain.SignalJoin, Role: c.role}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return domain.NewTransportError(fmt.Errorf("send join: %w", err))
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	c.logger.Infow("signaling channel established", "session_id", c.sessionID, "role", c.role)
	return nil
}

// Send writes one message to the relay. Implements ports.SignalSender.
func (c *Client) Send(msg domain.SignalMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return domain.NewTransportError(fmt.Errorf("%w: signaling channel not connected", domain.ErrHandleClosed))
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(msg)
}

// Run connects, then reads and dispatches messages until ctx is cancelled.
// A read failure hands control to the reconnector; when its policy is
// exhausted, Run returns the exhaustion error and performs no further
// attempts.
func (c *Client) Run(ctx context.Context, reconnector Reconnector) error {
	if err := c.dial(ctx); err != nil {
		if rerr := reconnector.RunReconnect(ctx, c.dial); rerr != nil {
			return rerr
		}
	}

	for {
		conn := c.current()
		if conn == nil {
			return domain.NewTransportError(fmt.Errorf("%w: no signaling connection", domain.ErrHandleClosed))
		}

		var msg domain.SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warnw("signaling channel lost", "error", err)
			if rerr := reconnector.RunReconnect(ctx, c.dial); rerr != nil {
				return rerr
			}
			continue
		}

		// dispatched inline: message order within the session is preserved
		c.handler(ctx, msg)
	}
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Close shuts the signaling channel down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
