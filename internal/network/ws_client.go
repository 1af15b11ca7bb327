package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"deskpilot/internal/protocol"
)

// ErrClientClosed is returned by Call after the connection has gone away.
var ErrClientClosed = errors.New("ws client: connection closed")

// RemoteError is a failed result reported by the server.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return "remote: " + e.Message
	}
	return fmt.Sprintf("remote %s: %s", e.Code, e.Message)
}

// WSClient sends commands to a deskpilot server over WebSocket and matches
// each result to its request by ID.
type WSClient struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.Message
	closed  bool

	onEvent func(protocol.EventPayload)

	done chan struct{}
}

// WSOption configures a WSClient.
type WSOption func(*WSClient)

// WithEventHandler receives operations performed by any client of the server.
func WithEventHandler(fn func(protocol.EventPayload)) WSOption {
	return func(c *WSClient) { c.onEvent = fn }
}

// WithWSLogger sets the client logger.
func WithWSLogger(l *zap.Logger) WSOption {
	return func(c *WSClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// DialWS connects to the server at addr ("host:port"). A non-empty token is
// sent as a bearer token.
func DialWS(ctx context.Context, addr, token string, opts ...WSOption) (*WSClient, error) {
	c := &WSClient{
		logger:  zap.NewNop(),
		pending: make(map[string]chan protocol.Message),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	c.logger.Debug("connecting", zap.String("url", u.String()))

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.String(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	c.conn = conn

	go c.readPump()
	return c, nil
}

func (c *WSClient) readPump() {
	defer close(c.done)
	defer c.failPending()

	c.conn.SetReadLimit(1 << 16)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read error", zap.Error(err))
			}
			return
		}

		msg, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.Warn("invalid message", zap.Error(err))
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *WSClient) handleMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeResult:
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- msg
		}

	case protocol.TypeEvent:
		if c.onEvent == nil {
			return
		}
		var ev protocol.EventPayload
		if err := msg.Decode(&ev); err != nil {
			c.logger.Warn("invalid event", zap.Error(err))
			return
		}
		c.onEvent(ev)
	}
}

func (c *WSClient) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Call sends a request and waits for its result. A result with OK false is
// returned together with a *RemoteError.
func (c *WSClient) Call(ctx context.Context, t protocol.MessageType, payload any) (protocol.ResultPayload, error) {
	id := uuid.NewString()
	msg, err := protocol.NewMessage(t, id, payload)
	if err != nil {
		return protocol.ResultPayload{}, err
	}
	data, err := protocol.Marshal(msg)
	if err != nil {
		return protocol.ResultPayload{}, err
	}

	ch := make(chan protocol.Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return protocol.ResultPayload{}, ErrClientClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(data); err != nil {
		c.forget(id)
		return protocol.ResultPayload{}, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return protocol.ResultPayload{}, ErrClientClosed
		}
		var res protocol.ResultPayload
		if err := reply.Decode(&res); err != nil {
			return protocol.ResultPayload{}, err
		}
		if !res.OK {
			return res, &RemoteError{Code: res.Code, Message: res.Error}
		}
		return res, nil
	case <-ctx.Done():
		c.forget(id)
		return protocol.ResultPayload{}, ctx.Err()
	}
}

func (c *WSClient) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *WSClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("ws write: %w", err)
	}
	return nil
}

// Done is closed once the connection has ended.
func (c *WSClient) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame, closes the connection and waits for the read
// loop to exit.
func (c *WSClient) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}
