package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"deskpilot/internal/desktop"
	"deskpilot/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins; access is controlled by the API token.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSManager tracks WebSocket clients, runs their commands and broadcasts
// desktop events to all of them.
type WSManager struct {
	server *Server
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	clientsMu sync.Mutex
	clients   map[*WebSocketClient]bool
	closed    bool
	wg        sync.WaitGroup
}

// WebSocketClient represents a connected controller
type WebSocketClient struct {
	id      string
	manager *WSManager
	conn    *websocket.Conn
	send    chan []byte
	ip      string
}

func newWSManager(s *Server) *WSManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSManager{
		server:  s,
		logger:  s.logger.Named("ws"),
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*WebSocketClient]bool),
	}
}

// Count returns the number of connected clients.
func (m *WSManager) Count() int {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	return len(m.clients)
}

// stop cancels running commands, disconnects every client and waits for
// their pumps to exit. Later connections are refused.
func (m *WSManager) stop() {
	m.cancel()
	m.clientsMu.Lock()
	m.closed = true
	for c := range m.clients {
		delete(m.clients, c)
		close(c.send)
	}
	m.clientsMu.Unlock()
	m.wg.Wait()
}

func (m *WSManager) remove(c *WebSocketClient) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	if _, ok := m.clients[c]; ok {
		delete(m.clients, c)
		close(c.send)
		m.logger.Info("client disconnected", zap.String("client", c.id), zap.String("remote", c.ip), zap.Int("clients", len(m.clients)))
	}
}

// deliver queues data for c. A client whose buffer is full is dropped.
func (m *WSManager) deliver(c *WebSocketClient, data []byte) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	m.deliverLocked(c, data)
}

func (m *WSManager) deliverLocked(c *WebSocketClient, data []byte) {
	if _, ok := m.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		m.logger.Warn("client too slow, dropping", zap.String("client", c.id))
		delete(m.clients, c)
		close(c.send)
	}
}

func (m *WSManager) broadcast(msg protocol.Message) {
	data, err := protocol.Marshal(msg)
	if err != nil {
		m.logger.Warn("marshal broadcast", zap.Error(err))
		return
	}
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	for c := range m.clients {
		m.deliverLocked(c, data)
	}
}

// broadcastAction is the desktop action observer. It never blocks.
func (m *WSManager) broadcastAction(a desktop.Action) {
	ev := protocol.EventPayload{Op: a.Op}
	if a.Point != nil {
		x, y := a.Point.X, a.Point.Y
		ev.X, ev.Y = &x, &y
	}
	if a.Err != nil {
		ev.Error = a.Err.Error()
	}
	msg, err := protocol.NewMessage(protocol.TypeEvent, "", ev)
	if err != nil {
		return
	}
	m.broadcast(msg)
}

func (m *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := &WebSocketClient{
		id:      uuid.NewString(),
		manager: m,
		conn:    conn,
		send:    make(chan []byte, 256),
		ip:      r.RemoteAddr,
	}

	m.clientsMu.Lock()
	if m.closed {
		m.clientsMu.Unlock()
		conn.Close()
		return
	}
	m.clients[client] = true
	m.wg.Add(2)
	n := len(m.clients)
	m.clientsMu.Unlock()
	m.logger.Info("client connected", zap.String("client", client.id), zap.String("remote", client.ip), zap.Int("clients", n))

	go client.writePump()
	go client.readPump()
}

// readPump reads commands and runs them in order.
func (c *WebSocketClient) readPump() {
	m := c.manager
	defer func() {
		m.remove(c)
		c.conn.Close()
		m.wg.Done()
	}()

	c.conn.SetReadLimit(1 << 16)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				m.logger.Debug("read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		c.handleMessage(data)
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.manager.wg.Done()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The manager closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) handleMessage(data []byte) {
	m := c.manager
	msg, err := protocol.Unmarshal(data)
	if err != nil {
		m.logger.Debug("invalid message", zap.String("client", c.id), zap.Error(err))
		c.reply("", protocol.ResultPayload{}, ErrBadRequest)
		return
	}

	switch msg.Type {
	case protocol.TypeAuth, protocol.TypePing:
		// The connection was authenticated on upgrade.
		c.reply(msg.ID, protocol.ResultPayload{}, nil)
		return
	}

	decode := func(v any) error {
		if len(msg.Payload) == 0 {
			return nil
		}
		return msg.Decode(v)
	}
	res, err := m.server.execute(m.ctx, msg.Type, decode)
	c.reply(msg.ID, res, err)
}

func (c *WebSocketClient) reply(id string, res protocol.ResultPayload, err error) {
	res.OK = err == nil
	if err != nil {
		_, res.Code = classify(err)
		res.Error = err.Error()
	}
	msg, merr := protocol.NewMessage(protocol.TypeResult, id, res)
	if merr != nil {
		return
	}
	data, merr := protocol.Marshal(msg)
	if merr != nil {
		return
	}
	c.manager.deliver(c, data)
}
