package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/alfredjeanlab/wagate/internal/broadcast"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4096
)

// wsInbound is a message from a push-channel client.
type wsInbound struct {
	Type       string      `json:"type"` // join | leave | ping
	TenantID   looseString `json:"tenant_id"`
	BusinessID looseString `json:"businessID"`
}

func (m wsInbound) tenant() string {
	if m.TenantID != "" {
		return string(m.TenantID)
	}
	return string(m.BusinessID)
}

// wsOutbound is a message to a push-channel client.
type wsOutbound struct {
	Type     string          `json:"type"` // event | joined | left | pong | error
	ID       uint64          `json:"id,omitempty"`
	Event    string          `json:"event,omitempty"`
	TenantID string          `json:"tenant_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func eventMessage(evt *broadcast.Event) wsOutbound {
	return wsOutbound{Type: "event", ID: evt.ID, Event: evt.Name, TenantID: evt.TenantID, Data: evt.Data}
}

// handleWebSocket handles GET /v1/ws. A tenant_id (or businessID) query
// parameter joins that tenant's room immediately; afterwards the client
// switches rooms with join and leave messages.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	sub := s.hub.Subscribe()
	c := &wsClient{
		conn:   conn,
		sub:    sub,
		hub:    s.hub,
		ctrl:   make(chan wsOutbound, 8),
		done:   make(chan struct{}),
		server: s,
	}
	s.logger.Debug("websocket connected", "subscriber", sub.ID, "remote", r.RemoteAddr)

	q := r.URL.Query()
	if tenantID := firstNonEmpty(q.Get("tenant_id"), q.Get("businessID")); tenantID != "" {
		s.hub.Join(sub, tenantID)
	}

	go c.writePump()
	c.readPump()
}

type wsClient struct {
	conn   *websocket.Conn
	sub    *broadcast.Subscriber
	hub    *broadcast.Hub
	ctrl   chan wsOutbound
	done   chan struct{}
	server *Server
}

// readPump handles client messages until the connection fails, then tears
// the client down.
func (c *wsClient) readPump() {
	defer func() {
		close(c.done)
		c.hub.Unsubscribe(c.sub)
		c.conn.Close()
		c.server.logger.Debug("websocket disconnected", "subscriber", c.sub.ID)
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Debug("websocket read error", "subscriber", c.sub.ID, "error", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(wsOutbound{Type: "error", Error: "invalid JSON message"})
		return
	}
	switch strings.ToLower(msg.Type) {
	case "join":
		tenantID := msg.tenant()
		if tenantID == "" {
			c.reply(wsOutbound{Type: "error", Error: "tenant_id is required"})
			return
		}
		c.reply(wsOutbound{Type: "joined", TenantID: tenantID})
		c.hub.Join(c.sub, tenantID)
	case "leave":
		c.hub.Leave(c.sub)
		c.reply(wsOutbound{Type: "left"})
	case "ping":
		c.reply(wsOutbound{Type: "pong"})
	default:
		c.reply(wsOutbound{Type: "error", Error: "unknown message type " + msg.Type})
	}
}

func (c *wsClient) reply(m wsOutbound) {
	select {
	case c.ctrl <- m:
	case <-c.done:
	default:
		// Client is not reading; drop like the hub does.
	}
}

// writePump owns every write to the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case m := <-c.ctrl:
			if err := c.write(m); err != nil {
				return
			}
		case evt, ok := <-c.sub.Events():
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(eventMessage(evt)); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) write(m wsOutbound) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(m)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
